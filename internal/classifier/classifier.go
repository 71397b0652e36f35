// Package classifier assigns an event type from industry keyword tables.
package classifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"callintel-go/internal/industry"
	"callintel-go/internal/logger"
	"callintel-go/internal/types"
)

const defaultTypeConfidence = 0.4

// Classifier scores candidate event types against industry keyword and
// modifier tables. Stateless; classification is deterministic for identical
// inputs.
type Classifier struct {
	log *logrus.Entry
}

func New() *Classifier {
	return &Classifier{log: logger.New().WithComponent("event-classifier")}
}

// Classify picks the best-fitting type for an event. Keyword scoring: +3 for
// a hit in the description, +2 in the title, +1 in the raw transcript, then
// every matching urgency modifier compounds multiplicatively. An emergency
// trigger anywhere in the inputs overrides the keyword winner.
func (c *Classifier) Classify(ev *types.ExtractedEvent, transcript, industryName string) types.ClassificationResult {
	prof := industry.Get(industryName)
	desc := strings.ToLower(ev.Description)
	title := strings.ToLower(ev.Title)
	tr := strings.ToLower(transcript)
	combined := desc + " " + title + " " + tr

	multiplier := 1.0
	var matchedMods []string
	for _, mod := range prof.UrgencyModifiers {
		if strings.Contains(combined, strings.ToLower(mod.Phrase)) {
			multiplier *= mod.Multiplier
			matchedMods = append(matchedMods, mod.Phrase)
		}
	}

	scores := make(map[types.EventType]float64, len(prof.TypeOrder))
	matched := make(map[types.EventType][]string, len(prof.TypeOrder))
	for _, t := range prof.TypeOrder {
		raw := 0.0
		for _, kw := range prof.Keywords[t] {
			k := strings.ToLower(kw)
			if strings.Contains(desc, k) {
				raw += 3
				matched[t] = append(matched[t], kw)
			}
			if strings.Contains(title, k) {
				raw += 2
			}
			if strings.Contains(tr, k) {
				raw += 1
			}
		}
		scores[t] = raw * multiplier
	}

	winner := prof.DefaultType
	best := 0.0
	for _, t := range prof.TypeOrder { // declared order breaks ties
		if scores[t] > best {
			best = scores[t]
			winner = t
		}
	}

	denom := float64(len(prof.TypeOrder) * 3)
	var conf float64
	var reasoning string
	if best == 0 {
		conf = defaultTypeConfidence
		reasoning = fmt.Sprintf("no keyword matches, defaulting to %s", prof.DefaultType)
	} else {
		conf = minF(1, best/denom)
		reasoning = fmt.Sprintf("matched %s keywords %v (score %.1f)", winner, matched[winner], best)
		if len(matchedMods) > 0 {
			reasoning += fmt.Sprintf(", modifiers %v x%.2f", matchedMods, multiplier)
		}
	}

	if trigger := firstTrigger(combined, prof.EmergencyTriggers); trigger != "" {
		winner = types.EventEmergency
		conf = minF(1, conf+0.3)
		if conf < 0.9 {
			conf = 0.9
		}
		reasoning = fmt.Sprintf("emergency trigger %q forces emergency classification; %s", trigger, reasoning)
	}

	res := types.ClassificationResult{
		Type:            winner,
		Confidence:      conf,
		Reasoning:       reasoning,
		Alternatives:    alternatives(prof, scores, winner, best, conf),
		IndustryContext: prof.Name,
	}
	c.log.WithFields(logrus.Fields{
		"industry":   prof.Name,
		"type":       res.Type,
		"confidence": res.Confidence,
	}).Debug("classified event")
	return res
}

// alternatives lists up to three runner-up types, confidence scaled by their
// score relative to the winner's.
func alternatives(prof *industry.Profile, scores map[types.EventType]float64, winner types.EventType, best, winnerConf float64) []types.Alternative {
	if best == 0 {
		return nil
	}
	var alts []types.Alternative
	for _, t := range prof.TypeOrder {
		if t == winner || scores[t] == 0 {
			continue
		}
		alts = append(alts, types.Alternative{
			Type:       t,
			Confidence: winnerConf * scores[t] / best,
		})
	}
	sort.SliceStable(alts, func(i, j int) bool { return alts[i].Confidence > alts[j].Confidence })
	if len(alts) > 3 {
		alts = alts[:3]
	}
	return alts
}

func firstTrigger(text string, triggers []string) string {
	for _, t := range triggers {
		if t != "" && strings.Contains(text, strings.ToLower(t)) {
			return t
		}
	}
	return ""
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
