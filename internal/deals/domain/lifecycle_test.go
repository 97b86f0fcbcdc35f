package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func meta(offset time.Duration) EventMeta {
	return EventMeta{ActorRef: "rep-1", SourceEventID: "evt", Now: baseTime.Add(offset)}
}

func openDeal(stage Stage) Deal {
	return OpenDealFromQuote(NewDealParams{
		AccountRef: "acct-1",
		ContactRef: "contact-1",
		OwnerRef:   "rep-1",
		Stage:      stage,
	}, "rev-1", meta(0)).Deal
}

func eventTypes(events []DealEvent) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func countType(events []DealEvent, t EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func TestShouldAdvanceNeverRegresses(t *testing.T) {
	cases := []struct {
		current, target Stage
		want            bool
	}{
		{StageProspecting, StageProposal, true},
		{StageProposal, StageProspecting, false},
		{StageProposal, StageProposal, false},
		{StageNegotiation, StageQualification, false},
		{StageClosedLost, StageProposal, false},
		{StageClosedWon, StageClosedLost, false},
		{StageQualification, Stage("bogus"), false},
	}
	for _, tc := range cases {
		if got := ShouldAdvance(tc.current, tc.target); got != tc.want {
			t.Fatalf("ShouldAdvance(%s, %s) = %v, want %v", tc.current, tc.target, got, tc.want)
		}
	}
}

func TestTargetStageForRevision(t *testing.T) {
	if got := TargetStageForRevision(RevisionWalkthroughProposal); got != StageProspecting {
		t.Fatalf("walkthrough should map to prospecting, got %s", got)
	}
	if got := TargetStageForRevision(RevisionFinalQuote); got != StageProposal {
		t.Fatalf("final quote should map to proposal, got %s", got)
	}
	if got := TargetStageForRevision("change_order"); got != StageQualification {
		t.Fatalf("other revisions should map to qualification, got %s", got)
	}
}

func TestOpenDealFromQuoteStartsAtTargetStage(t *testing.T) {
	c := OpenDealFromQuote(NewDealParams{
		AccountRef: "acct-1",
		ContactRef: "contact-1",
		OwnerRef:   "rep-1",
		Stage:      TargetStageForRevision(RevisionFinalQuote),
	}, "rev-1", meta(0))

	if c.Deal.Stage != StageProposal {
		t.Fatalf("expected proposal, got %s", c.Deal.Stage)
	}
	if c.Deal.Source != SourceQuoteAuto {
		t.Fatalf("expected quote_auto source, got %s", c.Deal.Source)
	}
	if len(c.Events) != 1 || c.Events[0].Type != EventDealCreated {
		t.Fatalf("expected a single deal_created event, got %v", eventTypes(c.Events))
	}
}

func TestApplyQuoteSentOnProposalDealKeepsStage(t *testing.T) {
	d := openDeal(StageProposal)
	c := ApplyQuoteSent(d, QuoteSent{
		RevisionID:     "rev-2",
		RevisionNumber: 2,
		RevisionType:   RevisionWalkthroughProposal,
		Value:          RangeValue(decimal.NewFromInt(800), decimal.NewFromInt(1200)),
		FollowUpDelay:  24 * time.Hour,
	}, meta(time.Hour))

	if c.Deal.Stage != StageProposal {
		t.Fatalf("stage regressed to %s", c.Deal.Stage)
	}
	if c.StageChanged {
		t.Fatalf("did not expect a stage change")
	}
	want := baseTime.Add(25 * time.Hour)
	if c.Deal.NextActionAt == nil || !c.Deal.NextActionAt.Equal(want) {
		t.Fatalf("expected follow-up at %v, got %v", want, c.Deal.NextActionAt)
	}
	if got := eventTypes(c.Events); len(got) != 2 || got[0] != EventQuoteSent || got[1] != EventValueChanged {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestApplyQuoteSentRangeDoesNotOverwriteBinding(t *testing.T) {
	d := openDeal(StageQualification)
	d.Value = BindingValue(decimal.NewFromInt(1000))

	c := ApplyQuoteSent(d, QuoteSent{
		RevisionID:    "rev-2",
		RevisionType:  RevisionFinalQuote,
		Value:         RangeValue(decimal.NewFromInt(800), decimal.NewFromInt(1200)),
		FollowUpDelay: time.Hour,
	}, meta(time.Hour))

	if c.Deal.Value.Kind != ValueBinding || !c.Deal.Value.Amount.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("binding value was clobbered: %+v", c.Deal.Value)
	}
	if countType(c.Events, EventValueChanged) != 0 {
		t.Fatalf("did not expect value_changed")
	}
	if c.Deal.Stage != StageProposal {
		t.Fatalf("expected advance to proposal, got %s", c.Deal.Stage)
	}
}

func TestApplyQuoteAcceptedClosesWonWithBindingTotal(t *testing.T) {
	d := openDeal(StageProposal)
	d.Value = RangeValue(decimal.NewFromInt(800), decimal.NewFromInt(1200))
	total := decimal.NewFromInt(950)

	c := ApplyQuoteAccepted(d, QuoteAccepted{
		Revision:     QuoteRevision{RevisionID: "rev-1", Type: RevisionFinalQuote},
		BindingTotal: &total,
	}, meta(time.Hour))

	if !c.Deal.IsClosed || c.Deal.Stage != StageClosedWon {
		t.Fatalf("expected closed_won, got %s closed=%v", c.Deal.Stage, c.Deal.IsClosed)
	}
	if c.Deal.ClosedReason == nil || *c.Deal.ClosedReason != ClosedReasonWon {
		t.Fatalf("expected won reason, got %v", c.Deal.ClosedReason)
	}
	if !c.Deal.Value.Equal(BindingValue(total)) {
		t.Fatalf("expected binding 950, got %+v", c.Deal.Value)
	}
	if c.Deal.NextActionAt != nil {
		t.Fatalf("closed deals keep no follow-up")
	}
}

func TestApplyQuoteAcceptedUsesRevisionBindingTotal(t *testing.T) {
	d := openDeal(StageProposal)
	c := ApplyQuoteAccepted(d, QuoteAccepted{
		Revision: QuoteRevision{RevisionID: "rev-1", Type: RevisionFinalQuote, Value: BindingValue(decimal.NewFromInt(4200))},
	}, meta(time.Hour))

	if !c.Deal.Value.Equal(BindingValue(decimal.NewFromInt(4200))) {
		t.Fatalf("expected revision total, got %+v", c.Deal.Value)
	}
}

func TestApplyQuoteAcceptedOnWalkthroughKeepsDealOpen(t *testing.T) {
	d := openDeal(StageProspecting)
	c := ApplyQuoteAccepted(d, QuoteAccepted{
		Revision: QuoteRevision{RevisionID: "rev-1", Type: RevisionWalkthroughProposal},
	}, meta(time.Hour))

	if c.Deal.IsClosed {
		t.Fatalf("walkthrough acceptance must not close the deal")
	}
	if c.Deal.Stage != StageQualification {
		t.Fatalf("expected qualification, got %s", c.Deal.Stage)
	}
	if c.Deal.WalkthroughAcceptedAt == nil {
		t.Fatalf("expected walkthrough acceptance to be recorded")
	}
}

func TestClosedDealIgnoresLifecycleEvents(t *testing.T) {
	d := openDeal(StageProposal)
	lost := ApplyQuoteDeclined(d, "went with a competitor", meta(time.Hour)).Deal

	changes := []Change{
		ApplyQuoteAccepted(lost, QuoteAccepted{Revision: QuoteRevision{Type: RevisionFinalQuote}}, meta(2*time.Hour)),
		ApplyQuoteSent(lost, QuoteSent{RevisionType: RevisionFinalQuote}, meta(2*time.Hour)),
		ApplyQuoteViewed(lost, QuoteRevision{}, meta(2*time.Hour)),
		ApplyQuoteExpired(lost, meta(2*time.Hour)),
		ApplyQuoteDeclined(lost, "again", meta(2*time.Hour)),
		ApplyContactAttempt(lost, ContactAttempt{Outcome: OutcomeNoContact}, DefaultCadencePolicy(), meta(2*time.Hour)),
	}
	for i, c := range changes {
		if !c.NoOp || len(c.Events) != 0 {
			t.Fatalf("change %d: expected no-op without events, got %v", i, eventTypes(c.Events))
		}
		if c.Deal.Stage != StageClosedLost || c.Deal.ClosedNote == nil || *c.Deal.ClosedNote != "went with a competitor" {
			t.Fatalf("change %d: closed deal was modified: %+v", i, c.Deal)
		}
	}
}

func TestApplyQuoteExpiredFlagsRiskWithoutClosing(t *testing.T) {
	d := openDeal(StageProposal)
	now := meta(3 * time.Hour)
	c := ApplyQuoteExpired(d, now)

	if c.Deal.IsClosed {
		t.Fatalf("expiry must not close the deal")
	}
	if !c.Deal.AtRisk || !c.BecameAtRisk {
		t.Fatalf("expected deal to become at risk")
	}
	if c.Deal.NextActionAt == nil || !c.Deal.NextActionAt.Equal(now.Now) {
		t.Fatalf("expected immediate follow-up, got %v", c.Deal.NextActionAt)
	}
}

func TestThreeStrikesAutoClosesOnce(t *testing.T) {
	policy := DefaultCadencePolicy()
	d := openDeal(StageQualification)

	for i := 1; i <= 3; i++ {
		c := ApplyContactAttempt(d, ContactAttempt{Outcome: OutcomeNoContact}, policy, meta(time.Duration(i)*time.Hour))
		d = c.Deal
		if i < 3 && c.AutoClosed {
			t.Fatalf("attempt %d closed the deal early", i)
		}
		if i == 3 && !c.AutoClosed {
			t.Fatalf("third failed attempt should auto close")
		}
	}

	if d.Stage != StageClosedLost || !d.IsClosed {
		t.Fatalf("expected closed_lost, got %s", d.Stage)
	}
	if d.ClosedReason == nil || !strings.Contains(string(*d.ClosedReason), "3 attempts") {
		t.Fatalf("unexpected closed reason %v", d.ClosedReason)
	}

	fourth := ApplyContactAttempt(d, ContactAttempt{Outcome: OutcomeNoContact}, policy, meta(4*time.Hour))
	if !fourth.NoOp || fourth.AutoClosed {
		t.Fatalf("fourth attempt must be a no-op")
	}
	if fourth.Deal.TotalContactAttempts != 3 {
		t.Fatalf("counters changed on closed deal: %d", fourth.Deal.TotalContactAttempts)
	}
}

func TestContactAttemptStreakRules(t *testing.T) {
	cases := []struct {
		outcome ContactOutcome
		want    int
	}{
		{OutcomeContactMade, 0},
		{OutcomeCompleted, 0},
		{OutcomeScheduled, 0},
		{OutcomeNoContact, 3},
		{OutcomeVoicemail, 3},
		{ContactOutcome("wrong_number"), 2},
	}
	for _, tc := range cases {
		d := openDeal(StageQualification)
		d.NoContactStreak = 2
		c := ApplyContactAttempt(d, ContactAttempt{Outcome: tc.outcome}, NewCadencePolicy(5, ""), meta(time.Hour))
		if c.Deal.NoContactStreak != tc.want {
			t.Fatalf("%s: expected streak %d, got %d", tc.outcome, tc.want, c.Deal.NoContactStreak)
		}
		if c.Deal.TotalContactAttempts != 1 || c.Deal.TouchCount != 1 {
			t.Fatalf("%s: expected totals to increment", tc.outcome)
		}
		if c.Deal.LastContactResult == nil || *c.Deal.LastContactResult != tc.outcome {
			t.Fatalf("%s: last contact result not recorded", tc.outcome)
		}
	}
}

func TestCadencePolicyHonoursConfiguredReason(t *testing.T) {
	policy := NewCadencePolicy(1, "unreachable")
	c := ApplyContactAttempt(openDeal(StageProspecting), ContactAttempt{Outcome: OutcomeVoicemail}, policy, meta(time.Hour))
	if !c.AutoClosed || *c.Deal.ClosedReason != "unreachable" {
		t.Fatalf("expected configured reason, got %+v", c.Deal.ClosedReason)
	}
	if got := eventTypes(c.Events); len(got) != 3 || got[0] != EventContactAttemptLogged || got[2] != EventAutoClosed {
		t.Fatalf("unexpected events %v", got)
	}
}
