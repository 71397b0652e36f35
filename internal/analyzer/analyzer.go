// Package analyzer clusters, deduplicates, prioritizes and conflict-checks
// all events extracted from a single call.
package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"callintel-go/internal/industry"
	"callintel-go/internal/logger"
	"callintel-go/internal/similarity"
	"callintel-go/internal/types"
)

const duplicateThreshold = 0.8

var genericSequential = []string{"first", "then", "follow-up", "follow up", "afterwards"}

var choiceVocab = []string{"or", "either", "option", "alternatively"}

// Analyzer is stateless and safe for concurrent use across calls.
type Analyzer struct {
	log *logrus.Entry
}

func New() *Analyzer {
	return &Analyzer{log: logger.New().WithComponent("multi-event-analyzer")}
}

// Analyze produces the call-level cross-event result.
func (a *Analyzer) Analyze(events []types.ExtractedEvent, transcript, industryName string) *types.MultiEventAnalysis {
	prof := industry.Get(industryName)
	out := &types.MultiEventAnalysis{TotalEvents: len(events)}
	if len(events) == 0 {
		out.RecommendedAction = types.ActionClarificationNeeded
		return out
	}

	out.Clusters = a.buildClusters(events, transcript, prof)
	out.Conflicts = detectConflicts(events)
	out.Prioritized = prioritize(events, prof)
	out.RecommendedAction = recommendAction(out.Clusters, out.Conflicts, prof)
	out.OverallConfidence = overallConfidence(events, out.Clusters)

	a.log.WithFields(logrus.Fields{
		"industry":  prof.Name,
		"events":    len(events),
		"clusters":  len(out.Clusters),
		"conflicts": len(out.Conflicts),
		"action":    out.RecommendedAction,
	}).Info("analysis complete")
	return out
}

// relationship tests one pair, first true wins. It is symmetric in its
// arguments.
func relationship(a, b *types.ExtractedEvent, prof *industry.Profile) string {
	if isDuplicate(a, b) {
		return "duplicate"
	}
	combined := strings.ToLower(a.Title + " " + a.Description + " " + b.Title + " " + b.Description)
	if matchesAnyWord(combined, genericSequential) || matchesAnyWord(combined, prof.SequentialVocab) {
		return "sequential"
	}
	if matchesAnyWord(combined, choiceVocab) {
		return "alternative"
	}
	if isComplementary(a, b, prof) {
		return "complementary"
	}
	return ""
}

func isDuplicate(a, b *types.ExtractedEvent) bool {
	sim := similarity.Ratio(a.Title, b.Title)
	if s := similarity.Ratio(a.Description, b.Description); s > sim {
		sim = s
	}
	if sim <= duplicateThreshold {
		return false
	}
	sameLoc := norm(a.Location) != "" && norm(a.Location) == norm(b.Location)
	sameTime := norm(a.ProposedDateTime) != "" && norm(a.ProposedDateTime) == norm(b.ProposedDateTime)
	return sameLoc || sameTime
}

// isComplementary checks the industry's paired-service tables in both
// orientations so the test stays symmetric.
func isComplementary(a, b *types.ExtractedEvent, prof *industry.Profile) bool {
	ta := strings.ToLower(a.Title + " " + a.Description)
	tb := strings.ToLower(b.Title + " " + b.Description)
	for _, pair := range prof.ServicePairs {
		if (containsAnyKeyword(ta, pair.First) && containsAnyKeyword(tb, pair.Second)) ||
			(containsAnyKeyword(tb, pair.First) && containsAnyKeyword(ta, pair.Second)) {
			return true
		}
	}
	return false
}

// buildClusters merges related events around the earliest event of each
// group; unrelated events become singletons.
func (a *Analyzer) buildClusters(events []types.ExtractedEvent, transcript string, prof *industry.Profile) []types.EventCluster {
	n := len(events)
	group := make([]int, n)
	for i := range group {
		group[i] = -1
	}
	next := 0
	reasons := map[int][]string{}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rel := relationship(&events[i], &events[j], prof)
			if rel == "" {
				continue
			}
			switch {
			case group[i] == -1 && group[j] == -1:
				group[i], group[j] = next, next
				next++
			case group[i] != -1 && group[j] == -1:
				group[j] = group[i]
			case group[i] == -1 && group[j] != -1:
				group[i] = group[j]
			case group[i] != group[j]:
				// two established groups turn out to be related: fold the
				// later one into the earlier
				from, to := group[j], group[i]
				for k := range group {
					if group[k] == from {
						group[k] = to
					}
				}
				reasons[to] = append(reasons[to], reasons[from]...)
				delete(reasons, from)
			}
			reasons[group[i]] = append(reasons[group[i]], fmt.Sprintf("%s/%s %s", shortTitle(&events[i]), shortTitle(&events[j]), rel))
		}
	}
	for i := 0; i < n; i++ {
		if group[i] == -1 {
			group[i] = next
			next++
		}
	}

	seen := map[int]int{} // group id -> cluster index
	var clusters []types.EventCluster
	for i := 0; i < n; i++ {
		g := group[i]
		if idx, ok := seen[g]; ok {
			clusters[idx].Related = append(clusters[idx].Related, events[i])
			continue
		}
		seen[g] = len(clusters)
		clusters = append(clusters, types.EventCluster{Primary: events[i]})
	}

	for idx := range clusters {
		c := &clusters[idx]
		if len(c.Related) == 0 {
			c.Kind = types.ClusterSingle
			c.Reasoning = "unrelated to other events in this call"
		} else {
			c.Kind = refineKind(transcript, prof)
			c.Reasoning = strings.Join(reasons[groupOf(seen, idx)], "; ")
		}
		c.Confidence = clusterConfidence(c)
	}
	return clusters
}

func groupOf(seen map[int]int, clusterIdx int) int {
	for g, idx := range seen {
		if idx == clusterIdx {
			return g
		}
	}
	return -1
}

// refineKind re-scans the raw transcript, not just the event texts, since
// the connective words often never make it into extracted fields.
func refineKind(transcript string, prof *industry.Profile) types.ClusterKind {
	t := strings.ToLower(transcript)
	if matchesAnyWord(t, choiceVocab) {
		return types.ClusterAlternatives
	}
	if matchesAnyWord(t, genericSequential) || matchesAnyWord(t, prof.SequentialVocab) {
		return types.ClusterSequence
	}
	return types.ClusterCombinedService
}

func clusterConfidence(c *types.EventCluster) float64 {
	sum := c.Primary.Confidence
	for _, ev := range c.Related {
		sum += ev.Confidence
	}
	mean := sum / float64(1+len(c.Related))
	penalty := 0.1 * float64(len(c.Related)-1)
	if penalty < 0 {
		penalty = 0
	}
	conf := mean - penalty
	if conf < 0.1 {
		conf = 0.1
	}
	return conf
}

// detectConflicts is a separate all-pairs pass, independent of clustering.
func detectConflicts(events []types.ExtractedEvent) []types.EventConflict {
	var out []types.EventConflict
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i], events[j]
			if t := norm(a.ProposedDateTime); t != "" && t == norm(b.ProposedDateTime) {
				out = append(out, types.EventConflict{
					EventA: a, EventB: b, Kind: types.ConflictTiming,
					Resolution: "two requests share the same proposed time, confirm which comes first",
				})
			}
			if l := norm(a.Location); l != "" && l == norm(b.Location) &&
				a.ServiceType != "" && b.ServiceType != "" && a.ServiceType != b.ServiceType {
				out = append(out, types.EventConflict{
					EventA: a, EventB: b, Kind: types.ConflictLocation,
					Resolution: "different services at the same address, consider combining into one visit",
				})
			}
			if p := norm(a.CustomerPhone); p != "" && p == norm(b.CustomerPhone) &&
				a.CustomerName != "" && b.CustomerName != "" && norm(a.CustomerName) != norm(b.CustomerName) {
				out = append(out, types.EventConflict{
					EventA: a, EventB: b, Kind: types.ConflictCustomerIdentity,
					Resolution: "same phone number under different names, verify the caller's identity",
				})
			}
		}
	}
	return out
}

var urgencyBase = map[types.Urgency]float64{
	types.UrgencyEmergency: 100,
	types.UrgencyHigh:      75,
	types.UrgencyMedium:    50,
	types.UrgencyLow:       25,
}

func prioritize(events []types.ExtractedEvent, prof *industry.Profile) []types.PrioritizedEvent {
	out := make([]types.PrioritizedEvent, 0, len(events))
	for _, ev := range events {
		score := urgencyBase[ev.Urgency]
		score += ev.Confidence * 20
		score += 5 * float64(ev.ContactFieldCount())
		var bonuses []string
		if ev.Location != "" && prof.AddressBonus > 0 {
			score += prof.AddressBonus
			bonuses = append(bonuses, fmt.Sprintf("+%.0f address", prof.AddressBonus))
		}
		if ev.ProposedDateTime != "" && prof.TimingBonus > 0 {
			score += prof.TimingBonus
			bonuses = append(bonuses, fmt.Sprintf("+%.0f timing", prof.TimingBonus))
		}
		reason := fmt.Sprintf("urgency %s, confidence %.2f, %d contact fields", ev.Urgency, ev.Confidence, ev.ContactFieldCount())
		if len(bonuses) > 0 {
			reason += ", " + strings.Join(bonuses, ", ")
		}
		out = append(out, types.PrioritizedEvent{Event: ev, Score: score, Reasoning: reason})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// recommendAction walks the decision ladder in fixed order.
func recommendAction(clusters []types.EventCluster, conflicts []types.EventConflict, prof *industry.Profile) types.RecommendedAction {
	if len(clusters) == 0 {
		return types.ActionClarificationNeeded
	}
	if len(clusters) == 1 && clusters[0].Kind == types.ClusterSingle {
		return types.ActionSingleAppointment
	}
	for _, c := range conflicts {
		if c.Kind == types.ConflictTiming || c.Kind == types.ConflictCustomerIdentity {
			return types.ActionClarificationNeeded
		}
	}
	for _, c := range clusters {
		if c.Kind == types.ClusterAlternatives {
			return types.ActionFollowUpCall
		}
	}
	for _, c := range clusters {
		if c.Kind == types.ClusterSequence {
			return types.ActionMultipleAppointments
		}
	}
	for _, c := range clusters {
		if c.Kind == types.ClusterCombinedService && prof.AutoMergeCombined {
			return types.ActionSingleAppointment
		}
	}
	return types.ActionMultipleAppointments
}

func overallConfidence(events []types.ExtractedEvent, clusters []types.EventCluster) float64 {
	evSum := 0.0
	for _, ev := range events {
		evSum += ev.Confidence
	}
	clSum := 0.0
	for _, c := range clusters {
		clSum += c.Confidence
	}
	evMean := evSum / float64(len(events))
	clMean := clSum / float64(len(clusters))
	return 0.7*evMean + 0.3*clMean
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func shortTitle(ev *types.ExtractedEvent) string {
	if ev.Title != "" {
		return ev.Title
	}
	return string(ev.Type)
}

// containsAnyKeyword reports whether any keyword occurs in text as a
// substring. Callers pass already-lowercased text.
func containsAnyKeyword(text string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

var wordRe = regexp.MustCompile(`[a-z0-9'-]+`)

// matchesAnyWord reports whether any vocabulary entry appears in text on
// word boundaries; multi-word entries fall back to substring match.
func matchesAnyWord(text string, vocab []string) bool {
	if len(vocab) == 0 {
		return false
	}
	var words map[string]struct{}
	for _, v := range vocab {
		v = strings.ToLower(v)
		if strings.ContainsAny(v, " -") && strings.Contains(text, v) {
			return true
		}
		if !strings.ContainsAny(v, " ") {
			if words == nil {
				words = map[string]struct{}{}
				for _, w := range wordRe.FindAllString(text, -1) {
					words[w] = struct{}{}
				}
			}
			if _, ok := words[v]; ok {
				return true
			}
		}
	}
	return false
}
