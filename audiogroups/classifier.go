// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audiogroups

// Classify returns the first stream entry, in declared order, whose rule
// matches cand. Later entries are never evaluated for this candidate.
// Returns nil when nothing matches; the candidate is then left untouched.
func (c *Config) Classify(cand Candidate) *Stream {
	for _, stream := range c.Streams {
		if stream.Rule != nil && stream.Rule.Matches(cand) {
			logger.Debugf("candidate matched stream %s with rule\n%s",
				stream.Name, stream.Rule)
			return stream
		}
	}
	return nil
}
