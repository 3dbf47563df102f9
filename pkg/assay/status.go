package assay

import "fmt"

// Checklist criterion labels displayed alongside the verdict.
const (
	CriterionNegativeControl  = "Negative control recovery"
	CriterionPositiveSelected = "Positive control selected"
	CriterionAllKilled        = "Killed below half max = Yes for all wells"
	CriterionCVWithinLimit    = "%CV <= 30%"
	CriterionMeanWithinLimit  = "Average half-killing time <= 12 hours"
	CriterionNoRecovery       = "No recovery above half-max at last time point"
	detailNoPositiveControl   = "no positive control selected"
	detailNoMediumGroup       = "no medium/media-only sample group found"
	detailNoKillingStatistics = "no half-killing statistics recorded"
)

// DetermineStatus folds the run criteria into the overall verdict and the
// displayed checklist. Criteria are applied in order and Fail is permanent
// within one evaluation: a later criterion may move Pending to Pass or
// Fail, never Fail back to Pass. pc is nil when no positive control is
// selected, which keeps the run Pending unless the negative control has
// already failed it.
func DetermineStatus(hasData bool, nc NegativeControlResult, pc *SampleStatistics) (AssayStatus, []ChecklistItem) {
	if !hasData {
		return StatusPending, nil
	}

	status := StatusPending
	checklist := []ChecklistItem{negativeControlItem(nc)}
	if !nc.Passed {
		status = advance(status, StatusFail)
	}

	if pc == nil {
		checklist = append(checklist, ChecklistItem{
			Criterion: CriterionPositiveSelected,
			Outcome:   OutcomePending,
			Detail:    detailNoPositiveControl,
		})
		return status, checklist
	}

	checklist = append(checklist, ChecklistItem{
		Criterion: CriterionPositiveSelected,
		Outcome:   OutcomePass,
		Detail:    pc.SampleName,
	})
	checklist = append(checklist, positiveControlItems(*pc)...)
	if pc.Valid {
		status = advance(status, StatusPass)
	} else {
		status = advance(status, StatusFail)
	}
	return status, checklist
}

// advance applies the next transition while keeping Fail terminal for the
// current evaluation.
func advance(current, next AssayStatus) AssayStatus {
	if current == StatusFail {
		return current
	}
	return next
}

func negativeControlItem(nc NegativeControlResult) ChecklistItem {
	item := ChecklistItem{Criterion: CriterionNegativeControl}
	if !nc.Found {
		item.Outcome = OutcomeFail
		item.Detail = detailNoMediumGroup
		return item
	}
	item.Detail = fmt.Sprintf("%s: last average %.2f vs half max %.2f", nc.SampleName, nc.LastAverage, nc.MaxAverage/2)
	if nc.Passed {
		item.Outcome = OutcomePass
	} else {
		item.Outcome = OutcomeFail
	}
	return item
}

func positiveControlItems(pc SampleStatistics) []ChecklistItem {
	items := make([]ChecklistItem, 0, 4)

	killed := ChecklistItem{Criterion: CriterionAllKilled, Outcome: OutcomeFail, Detail: pc.KillSummary}
	if pc.KillSummary == KillSummaryAllYes {
		killed.Outcome = OutcomePass
	}
	items = append(items, killed)

	cv := ChecklistItem{Criterion: CriterionCVWithinLimit, Outcome: OutcomePending, Detail: detailNoKillingStatistics}
	if pc.CVPercent != nil {
		cv.Detail = fmt.Sprintf("%%CV %.2f", *pc.CVPercent)
		if *pc.CVPercent <= MaxValidCVPercent {
			cv.Outcome = OutcomePass
		} else {
			cv.Outcome = OutcomeFail
		}
	}
	items = append(items, cv)

	mean := ChecklistItem{Criterion: CriterionMeanWithinLimit, Outcome: OutcomePending, Detail: detailNoKillingStatistics}
	if pc.MeanKillingHours != nil {
		mean.Detail = fmt.Sprintf("average %.2f hours", *pc.MeanKillingHours)
		if *pc.MeanKillingHours <= MaxValidMeanKillingHours {
			mean.Outcome = OutcomePass
		} else {
			mean.Outcome = OutcomeFail
		}
	}
	items = append(items, mean)

	recovery := ChecklistItem{Criterion: CriterionNoRecovery, Outcome: OutcomePass}
	if pc.Recovered {
		recovery.Outcome = OutcomeFail
		recovery.Detail = "cell index recovered above half-max at last time point"
	}
	items = append(items, recovery)
	return items
}
