package dispatch

import (
	"fmt"

	"subconscious/internal/models"
)

// BuildPrompt wraps a thought's content in the template for its type.
// Deep-reasoning types get structured multi-part prompts; the light
// types get short focused ones suited to small models.
func BuildPrompt(t models.ThoughtType, content string) string {
	switch t {
	case models.TypePattern:
		return fmt.Sprintf("What pattern do you notice in: %s\nPattern:", content)
	case models.TypeConnection:
		return fmt.Sprintf("What connects these ideas: %s\nConnection:", content)
	case models.TypeQuestion:
		return fmt.Sprintf("What's interesting about: %s\nInsight:", content)
	case models.TypeProblem:
		return fmt.Sprintf(`You are a sophisticated reasoning system. Analyze this problem deeply:

%s

Provide:
1. Core problem decomposition
2. Key constraints and dependencies
3. Multiple solution approaches with trade-offs
4. Recommended approach with justification
5. Potential edge cases and failure modes

Be thorough but concise. Think step by step.`, content)
	case models.TypeDesign:
		return fmt.Sprintf(`You are an expert system architect. Design a solution for:

%s

Include:
1. High-level architecture
2. Key components and their interactions
3. Data flow and state management
4. Scalability considerations
5. Alternative design patterns considered

Focus on elegance and maintainability.`, content)
	case models.TypeAnalysis:
		return fmt.Sprintf(`You are an analytical reasoning system. Analyze:

%s

Examine:
1. Current state assessment
2. Patterns and anomalies
3. Root cause analysis
4. Implications and consequences
5. Optimization opportunities

Use first principles thinking.`, content)
	case models.TypeExploration:
		return fmt.Sprintf(`You are a creative exploration system. Explore:

%s

Consider adjacent possibilities, "what if" scenarios, and second-order
effects. Be imaginative but grounded.`, content)
	default:
		return fmt.Sprintf("Reflect on: %s\nThought:", content)
	}
}
