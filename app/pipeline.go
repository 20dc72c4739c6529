package app

import (
	"context"
	"time"

	"flowval/domain/flow"
	"flowval/internal"
)

// Pipeline runs every analysis of a dataset in order: assembly, FDC
// ranges, then variability and moments of one site in both spaces.
type Pipeline struct {
	Assembly    *AssemblyService
	FDC         *FDCService
	Variability *VariabilityService
	Moments     *MomentsService
	Logger      *internal.Logger
}

// PipelineResult collects the result of each stage
type PipelineResult struct {
	Assembly    *AssemblyResult
	FDC         *FDCResult
	Variability []*VariabilityResult
	Moments     *MomentsResult
	Duration    time.Duration
}

// Run stops at the first failing stage.
func (p *Pipeline) Run(ctx context.Context, siteRef string) (*PipelineResult, error) {
	logger := p.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	start := time.Now()
	out := &PipelineResult{}

	var err error
	if out.Assembly, err = p.Assembly.Run(ctx, AssemblyRequest{}); err != nil {
		return nil, err
	}
	if out.FDC, err = p.FDC.Run(ctx, FDCRequest{}); err != nil {
		return nil, err
	}
	for _, space := range flow.Spaces() {
		res, err := p.Variability.Run(ctx, VariabilityRequest{Site: siteRef, Space: space})
		if err != nil {
			return nil, err
		}
		out.Variability = append(out.Variability, res)
	}
	if out.Moments, err = p.Moments.Run(ctx, MomentsRequest{Site: siteRef}); err != nil {
		return nil, err
	}

	out.Duration = time.Since(start)
	logger.Info("[all] finished in %s", out.Duration.Round(time.Millisecond))
	return out, nil
}
