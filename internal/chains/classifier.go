// Package chains detects which blockchain a transaction export belongs to.
package chains

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"cryptofmv/config"
	"cryptofmv/logger"
	"cryptofmv/models"
)

type rule struct {
	profile  models.ChainProfile
	patterns []*regexp.Regexp
}

// Classifier matches file names against ordered chain rules.
type Classifier struct {
	rules []rule
	log   *logger.Log
}

// NewClassifier compiles the rules. Patterns are case-insensitive regular
// expressions matched anywhere in the lowercased file name.
func NewClassifier(rules []config.ChainRule) (*Classifier, error) {
	c := &Classifier{log: logger.GetLogger()}
	for _, r := range rules {
		compiled := rule{profile: r.Profile()}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("chain %s: invalid pattern %q: %w", r.Name, p, err)
			}
			compiled.patterns = append(compiled.patterns, re)
		}
		c.rules = append(c.rules, compiled)
	}
	return c, nil
}

// Classify returns the profile of the first rule matching the file name.
func (c *Classifier) Classify(path string) (models.ChainProfile, bool) {
	name := strings.ToLower(filepath.Base(path))
	for _, r := range c.rules {
		for _, re := range r.patterns {
			if re.MatchString(name) {
				c.log.WithComponent("chain_classifier").WithFields(logger.Fields{
					"file":  name,
					"chain": r.profile.Name,
				}).Debug("chain detected")
				return r.profile, true
			}
		}
	}
	c.log.WithComponent("chain_classifier").WithFields(logger.Fields{"file": name}).Warn("cannot detect blockchain")
	return models.ChainProfile{}, false
}

// Profiles lists every configured chain in rule order.
func (c *Classifier) Profiles() []models.ChainProfile {
	out := make([]models.ChainProfile, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.profile)
	}
	return out
}
