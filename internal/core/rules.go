package core

import "cytocore/pkg/assay"

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *assay.RulesEngine {
	return assay.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *assay.RulesEngine {
	engine := assay.NewRulesEngine()
	engine.Register(NewSeriesIntegrityRule())
	engine.Register(NewSampleGroupingRule())
	engine.Register(NewRunLinkageRule())
	return engine
}
