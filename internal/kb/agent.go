package kb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/eddalabs/edda/internal/memo"
)

// maxAgentTurns bounds the investigation loop. The model gets this many
// generate turns (tool rounds included) before it must decide.
const maxAgentTurns = 8

// Agent runs the consistency review for one incoming memo and returns the
// validated action plan. It never mutates the knowledge base itself.
type Agent struct {
	g          *genkit.Genkit
	modelName  string
	parseModel string
	tools      *Toolset
	logger     *slog.Logger
}

// NewAgent creates the consistency agent. parseModel may equal modelName; it
// handles the cheap structured-extraction call.
func NewAgent(g *genkit.Genkit, modelName, parseModel string, tools *Toolset, logger *slog.Logger) (*Agent, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("toolset is required")
	}
	if parseModel == "" {
		parseModel = modelName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{g: g, modelName: modelName, parseModel: parseModel, tools: tools, logger: logger}, nil
}

// Review investigates how the incoming memo relates to the knowledge base
// and returns the actions to apply. A decision that cannot be parsed or
// validated yields an empty plan, which the executor treats as "discard the
// incoming memo".
func (a *Agent) Review(ctx context.Context, m *memo.Memo, content, summary string, tags []string) ([]Action, error) {
	ctx = WithScope(ctx, Scope{ProjectID: m.ProjectID, IncomingID: m.ID})

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithSystem(agentSystemPrompt),
		ai.WithPrompt(incomingPrompt(m.ID.String(), m.Title, content, summary, tags)),
		ai.WithTools(a.tools.Refs()...),
		ai.WithMaxTurns(maxAgentTurns),
	)
	if err != nil {
		return nil, fmt.Errorf("running consistency review: %w", err)
	}

	decision := resp.Text()
	a.logger.Debug("consistency decision", "memo_id", m.ID, "decision", decision)

	actions, err := a.parseDecision(ctx, decision, m)
	if err != nil {
		a.logger.Warn("unusable action plan, discarding incoming memo",
			"memo_id", m.ID, "error", err)
		return nil, nil
	}
	return actions, nil
}

// parseDecision extracts and validates the structured plan from the agent's
// free-text decision.
func (a *Agent) parseDecision(ctx context.Context, decision string, m *memo.Memo) ([]Action, error) {
	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.parseModel),
		ai.WithSystem(parseSystemPrompt),
		ai.WithPrompt(decision),
		ai.WithOutputType(rawPlan{}),
	)
	if err != nil {
		return nil, fmt.Errorf("extracting actions: %w", err)
	}

	var plan rawPlan
	if err := resp.Output(&plan); err != nil {
		return nil, fmt.Errorf("parsing actions: %w", err)
	}
	return validatePlan(plan, m.ID)
}
