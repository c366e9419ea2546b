package contracts

import "fmt"

// validVerdicts mirrors domain.ComplianceVerdict values; compared here as
// strings so the wire layer stays free of domain imports.
var validVerdicts = map[string]struct{}{
	"approved":              {},
	"approved_with_warning": {},
	"rejected":              {},
}

var validRevisionStages = map[string]struct{}{
	"research":   {},
	"modeling":   {},
	"selection":  {},
	"compliance": {},
}

// ValidateInsight checks one research item. A failing item is dropped by
// the stage adapter; it never aborts the batch.
func ValidateInsight(item RawInsight) []error {
	var errs []error
	if item.GameID == "" {
		errs = append(errs, fmt.Errorf("insight: game_id is required"))
	}
	if item.Summary == "" {
		errs = append(errs, fmt.Errorf("insight %s: summary is required", item.GameID))
	}
	if item.DataQuality < 0 || item.DataQuality > 1 {
		errs = append(errs, fmt.Errorf("insight %s: data_quality %v outside [0,1]", item.GameID, item.DataQuality))
	}
	return errs
}

// ValidateGameModel checks one model item.
func ValidateGameModel(item RawGameModel) []error {
	var errs []error
	if item.GameID == "" {
		errs = append(errs, fmt.Errorf("game model: game_id is required"))
	}
	if item.HomeWinProb < 0 || item.HomeWinProb > 1 {
		errs = append(errs, fmt.Errorf("game model %s: home_win_prob %v outside [0,1]", item.GameID, item.HomeWinProb))
	}
	if item.Confidence < 0 || item.Confidence > 1 {
		errs = append(errs, fmt.Errorf("game model %s: confidence %v outside [0,1]", item.GameID, item.Confidence))
	}
	for i, m := range item.Markets {
		if m.Probability < 0 || m.Probability > 1 {
			errs = append(errs, fmt.Errorf("game model %s: markets[%d].probability %v outside [0,1]", item.GameID, i, m.Probability))
		}
	}
	return errs
}

// ValidatePick checks one candidate pick. Odds and line strings are
// permitted to be messy (the reconciler normalizes them); only structural
// holes fail the item.
func ValidatePick(item RawPick) []error {
	var errs []error
	if item.GameID == "" {
		errs = append(errs, fmt.Errorf("pick: game_id is required"))
	}
	if item.Selection == "" && item.BetType == "" {
		errs = append(errs, fmt.Errorf("pick %s: selection or bet_type is required", item.GameID))
	}
	if item.Confidence < 0 || item.Confidence > 1 {
		errs = append(errs, fmt.Errorf("pick %s: confidence %v outside [0,1]", item.GameID, item.Confidence))
	}
	return errs
}

// ValidateVerdict checks one compliance result.
func ValidateVerdict(item RawVerdict) []error {
	var errs []error
	if item.GameID == "" {
		errs = append(errs, fmt.Errorf("verdict: game_id is required"))
	}
	if _, ok := validVerdicts[item.Verdict]; !ok {
		errs = append(errs, fmt.Errorf("verdict %s: unknown verdict %q", item.GameID, item.Verdict))
	}
	return errs
}

// ValidateApproval checks the approval response as a whole. Item-level
// problems in the pick references are left to the reconciler, which drops
// and logs unmatched keys; here we only reject structurally impossible
// revision requests.
func ValidateApproval(resp ApprovalResponse) []error {
	var errs []error
	for i, req := range resp.RevisionRequests {
		if _, ok := validRevisionStages[req.Stage]; !ok {
			errs = append(errs, fmt.Errorf("revision_requests[%d]: unknown stage %q", i, req.Stage))
		}
		if req.Reason == "" {
			errs = append(errs, fmt.Errorf("revision_requests[%d]: reason is required", i))
		}
	}
	return errs
}
