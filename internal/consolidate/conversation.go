package consolidate

import (
	"github.com/vthunder/rollup/internal/convert"
	"github.com/vthunder/rollup/internal/graph"
	"github.com/vthunder/rollup/internal/period"
)

// Conversation consolidates service interactions into one
// conversation_summary per period and reports the participants for
// INVOLVED_USER wiring.
type Conversation struct{}

// Consolidate aggregates interactions. Returns nil for an empty period.
func (Conversation) Consolidate(p period.Period, interactions []convert.ServiceInteraction) *Result {
	if len(interactions) == 0 {
		return nil
	}

	byChannel := make(map[string]int)
	byAction := make(map[string]int)
	participants := ConversationParticipants(interactions)
	for _, si := range interactions {
		if si.ChannelID != "" {
			byChannel[si.ChannelID]++
		}
		if si.ActionType != "" {
			byAction[si.ActionType]++
		}
	}

	channelCounts := make(map[string]any, len(byChannel))
	for ch, n := range byChannel {
		channelCounts[ch] = n
	}
	actionCounts := make(map[string]any, len(byAction))
	for a, n := range byAction {
		actionCounts[a] = n
	}

	attrs := map[string]any{
		"total_messages":      len(interactions),
		"unique_channels":     len(byChannel),
		"unique_authors":      len(participants),
		"messages_by_channel": channelCounts,
		"action_counts":       actionCounts,
	}

	summary := newSummaryNode(graph.NodeConversationSummary, p, attrs)
	return &Result{
		Summary:      summary,
		Edges:        summarizesSpecs(summary.ID, ConversationTargets(interactions)),
		Participants: participants,
	}
}

// ConversationParticipants counts messages per author id. Shared with the
// repair path, which recomputes participation from the raw records.
func ConversationParticipants(interactions []convert.ServiceInteraction) map[string]int {
	participants := make(map[string]int)
	for _, si := range interactions {
		if si.AuthorID != "" {
			participants[si.AuthorID]++
		}
	}
	return participants
}

// ConversationTargets returns the SUMMARIZES targets for a conversation
// summary: one channel node id per channel seen in the period. Channel ids
// follow the channel_{id} placeholder pattern, so missing targets are
// auto-created by the edge manager. Shared with the repair path.
func ConversationTargets(interactions []convert.ServiceInteraction) []string {
	var targets []string
	for _, si := range interactions {
		if si.ChannelID != "" {
			targets = append(targets, "channel_"+si.ChannelID)
		}
	}
	return uniqueSorted(targets)
}
