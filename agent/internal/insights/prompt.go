package insights

import (
	"encoding/json"
	"fmt"

	"github.com/crashdetector/crashdetector/pkg/types"
)

const promptTemplate = `You are a financial risk analyst system.
Analyze the following **REAL-TIME MARKET METRICS** and **RISK SIGNALS**:
%s

Based strictly on these numbers, the calculated risk levels, and your knowledge of **recent global financial news**:

1. **"Stock Picks"**: Identify 3-5 global stocks or sectors that are resilient or opportunistic given the specific stress signals above (e.g., if Yields are high, look for value; if JPY is volatile, look for hedges).
2. **"Saudi TASI Opportunities"**: Identify 3-5 opportunities in the Saudi TASI market, correlating them with the global oil/risk environment suggested by the data.

**CRITICAL GUIDELINES:**
- Focus on **RISK MANAGEMENT** and **TRUE NUMBERS**.
- Do not hallucinate data. Use the provided metrics as the ground truth for your rationale.
- Mention specific risks (e.g., "Due to high 10Y Yields...") in your explanation.
- Keep it concise, professional, and actionable (but strictly educational).

Format the output as a JSON object with keys "stock_picks" and "tasi_opportunities", containing HTML strings (inner content only).
`

// buildPrompt embeds the observations as indented JSON.
func buildPrompt(metrics []types.MetricObservation) (string, error) {
	if metrics == nil {
		metrics = []types.MetricObservation{}
	}
	b, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(promptTemplate, b), nil
}
