// Package governor turns a model's final turn output into the response shown
// to the learner. Proposed artifacts are persisted first so every artifact in
// the response carries a store-assigned id.
package governor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/metrics"
)

// UnifiedOutput is the learner-facing response of one turn.
type UnifiedOutput struct {
	Message     string               `json:"message"`
	Artifacts   []artifact.Reference `json:"artifacts"`
	Suggestions []string             `json:"suggestions"`
}

type Config struct {
	Artifacts artifact.Store
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type Governor struct {
	artifacts artifact.Store
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(c Config) (*Governor, error) {
	if c.Artifacts == nil {
		return nil, errors.New("governor requires an artifact store")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{artifacts: c.Artifacts, metrics: c.Metrics, logger: logger}, nil
}

// Package persists each proposal and assembles the response. Proposals the
// store rejects are dropped. The result is audited before it is returned;
// an audit failure is returned as an error and no output is produced.
func (g *Governor) Package(ctx context.Context, userID, content string, proposals []artifact.Proposal, suggestions []string) (UnifiedOutput, error) {
	out := UnifiedOutput{
		Message:     content,
		Artifacts:   make([]artifact.Reference, 0, len(proposals)),
		Suggestions: suggestions,
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}

	for _, p := range proposals {
		ref, err := g.artifacts.CreateArtifact(ctx, userID, p)
		if err == nil && ref == nil {
			err = ErrNoReference
		}
		if err != nil {
			g.metrics.IncArtifactDropped()
			g.logger.Warn("dropping artifact that could not be stored",
				zap.String("user_id", userID),
				zap.String("type", p.Type),
				zap.String("title", p.Title),
				zap.Error(err),
			)
			continue
		}
		out.Artifacts = append(out.Artifacts, *ref)
	}

	if err := Audit(out); err != nil {
		g.logger.Error("refusing to emit output", zap.String("user_id", userID), zap.Error(err))
		return UnifiedOutput{}, err
	}
	return out, nil
}

// Audit fails with ErrGhostID if any artifact id could not have been
// assigned by a store.
func Audit(out UnifiedOutput) error {
	for i, a := range out.Artifacts {
		if !artifact.ValidID(a.ID) {
			return fmt.Errorf("%w: artifact %d (%q) has id %q", ErrGhostID, i, a.Title, a.ID)
		}
	}
	return nil
}
