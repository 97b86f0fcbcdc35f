package handler

import (
	"encoding/json"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/scoring"
	"handlit_backend/internal/deals/service"
	"handlit_backend/internal/deals/transport"
)

func toDealResponse(d domain.Deal) transport.DealResponse {
	resp := transport.DealResponse{
		ID:                    d.ID,
		AccountRef:            d.AccountRef,
		ContactRef:            d.ContactRef,
		OwnerRef:              d.OwnerRef,
		Stage:                 string(d.Stage),
		Value:                 toValueResponse(d.Value),
		Source:                string(d.Source),
		IsClosed:              d.IsClosed,
		ClosedNote:            d.ClosedNote,
		ClosedAt:              d.ClosedAt,
		Probability:           d.Probability,
		TouchCount:            d.TouchCount,
		LastTouchAt:           d.LastTouchAt,
		LastActivityAt:        d.LastActivityAt,
		NextActionAt:          d.NextActionAt,
		AtRisk:                d.AtRisk,
		NoContactStreak:       d.NoContactStreak,
		TotalContactAttempts:  d.TotalContactAttempts,
		LastContactAttemptAt:  d.LastContactAttemptAt,
		WalkthroughAcceptedAt: d.WalkthroughAcceptedAt,
		LastQuoteSentAt:       d.LastQuoteSentAt,
		PriorityScore:         d.PriorityScore,
		CreatedAt:             d.CreatedAt,
		StageEnteredAt:        d.StageEnteredAt,
		UpdatedAt:             d.UpdatedAt,
	}
	if d.ClosedReason != nil {
		reason := string(*d.ClosedReason)
		resp.ClosedReason = &reason
	}
	if d.LastContactResult != nil {
		result := string(*d.LastContactResult)
		resp.LastContactResult = &result
	}
	return resp
}

func toValueResponse(v domain.DealValue) transport.ValueResponse {
	kind := v.Kind
	if kind == "" {
		kind = domain.ValueUnknown
	}
	resp := transport.ValueResponse{Kind: string(kind)}
	if v.Amount.Valid {
		amount := v.Amount.Decimal
		resp.Amount = &amount
	}
	if v.RangeLow.Valid {
		low := v.RangeLow.Decimal
		resp.RangeLow = &low
	}
	if v.RangeHigh.Valid {
		high := v.RangeHigh.Decimal
		resp.RangeHigh = &high
	}
	return resp
}

func toEventResult(out service.Outcome) transport.EventResultResponse {
	resp := transport.EventResultResponse{
		Replayed:   out.Replayed,
		NoOp:       out.NoOp,
		Created:    out.Created,
		AutoClosed: out.AutoClosed,
	}
	if !out.Deal.CreatedAt.IsZero() {
		deal := toDealResponse(out.Deal)
		resp.Deal = &deal
	}
	return resp
}

func toEventList(evts []domain.DealEvent) (transport.DealEventListResponse, error) {
	items := make([]transport.DealEventResponse, 0, len(evts))
	for _, e := range evts {
		oldValue, err := encodeValue(e.Old)
		if err != nil {
			return transport.DealEventListResponse{}, err
		}
		newValue, err := encodeValue(e.New)
		if err != nil {
			return transport.DealEventListResponse{}, err
		}
		items = append(items, transport.DealEventResponse{
			ID:            e.ID,
			DealID:        e.DealID,
			EventType:     string(e.Type),
			OldValue:      oldValue,
			NewValue:      newValue,
			ActorRef:      e.ActorRef,
			SourceEventID: e.SourceEventID,
			OccurredAt:    e.OccurredAt,
		})
	}
	return transport.DealEventListResponse{Items: items}, nil
}

func encodeValue(v domain.EventValue) (any, error) {
	raw, err := domain.EncodeEventValue(v)
	if err != nil || raw == nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func toScoreResponse(b scoring.Breakdown) transport.ScoreBreakdownResponse {
	return transport.ScoreBreakdownResponse{
		ValueWeighted:   b.ValueWeighted,
		StageMultiplier: b.StageMultiplier,
		TouchBonus:      b.TouchBonus,
		CloseLikelihood: b.CloseLikelihood,
		DaysSinceTouch:  b.DaysSinceTouch,
		UrgencyDecay:    b.UrgencyDecay,
		Score:           b.Score,
		Version:         b.Version,
	}
}

func toWorklistResponse(view service.WorklistView) transport.WorklistResponse {
	items := make([]transport.WorklistItemResponse, 0, len(view.Items))
	for _, item := range view.Items {
		reasons := make([]string, 0, len(item.Reasons))
		for _, r := range item.Reasons {
			reasons = append(reasons, string(r))
		}
		items = append(items, transport.WorklistItemResponse{
			Deal:    toDealResponse(item.Deal),
			Tier:    int(item.Tier),
			Reasons: reasons,
			Score:   toScoreResponse(item.Score),
		})
	}
	return transport.WorklistResponse{
		OwnerRef:    view.OwnerRef,
		GeneratedAt: view.GeneratedAt,
		Items:       items,
	}
}
