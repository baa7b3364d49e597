package recommend

import (
	"fmt"
	"strings"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

const systemPrompt = "You are an expert aviation medical officer with deep knowledge of pilot physiology " +
	"and US military flight protocols. Provide precise, data-driven analysis with clear numerical " +
	"comparisons to baselines."

const responseFormat = `Please provide:
1. Structured fatigue analysis with:
   - Current metrics compared to baselines
   - Percentage deviations from normal ranges
   - Status indicators (above/below/normal)
   - Key bullet-point findings
2. Three key risk factors (cognitive/cardiovascular/physical)
3. Specific recommendations based on US Air Force protocols
4. Flight readiness status

Format as JSON:
{
  "fatigue_analysis": {
    "current_metrics": [
      {"label": "string", "value": number, "baseline": number, "delta": number, "status": "above|below|normal"}
    ],
    "key_findings": ["finding1", "finding2"]
  },
  "risk_factors": [
    {"id": "string", "title": "string", "description": "string", "severity": "low|medium|high", "icon": "brain|heart|activity"}
  ],
  "recommendations": ["rec1", "rec2"],
  "flight_status": "FIT_TO_FLY|MONITOR|RESTRICT",
  "confidence_score": number
}`

// Request is the input for one pilot's recommendation.
type Request struct {
	PilotID string                `json:"pilot_id"`
	Age     int                   `json:"age"`
	Gender  types.Gender          `json:"gender"`
	Vitals  types.VitalsSnapshot  `json:"vitals"`
	Debrief *types.DebriefMetrics `json:"debrief,omitempty"`
}

// RequestsFor builds one request per pilot of m that has recorded vitals,
// in mission order. Pilots without history are skipped.
func RequestsFor(m types.MissionSession) []Request {
	out := make([]Request, 0, len(m.ActivePilots))
	for i := range m.ActivePilots {
		p := &m.ActivePilots[i]
		latest, ok := p.Latest()
		if !ok {
			continue
		}
		out = append(out, Request{
			PilotID: p.PilotID,
			Age:     p.Age,
			Gender:  p.Gender,
			Vitals:  latest,
			Debrief: p.DebriefMetrics,
		})
	}
	return out
}

// Prompt renders the user message sent to the provider for r.
func Prompt(r Request) string {
	var b strings.Builder
	b.WriteString("Analyze this pilot's metrics against standard baselines and provide structured recommendations:\n\n")

	b.WriteString("Pilot Profile:\n")
	fmt.Fprintf(&b, "- Age: %s\n", orNA(r.Age > 0, fmt.Sprint(r.Age)))
	fmt.Fprintf(&b, "- Gender: %s\n", orNA(r.Gender != "", string(r.Gender)))

	if r.Age > 0 && r.Gender != "" {
		base := BaselinesFor(r.Age, r.Gender)
		b.WriteString("\nBaseline Metrics (Age/Gender Adjusted):\n")
		fmt.Fprintf(&b, "- Heart Rate Variability: %g ms\n", base.HeartRateVariability)
		fmt.Fprintf(&b, "- Systolic Blood Pressure: %g mmHg\n", base.Systolic)
		fmt.Fprintf(&b, "- Oxygen Level: %g%%\n", base.OxygenLevel)
		fmt.Fprintf(&b, "- G-Force Limit: %gG\n", base.GForceLimit)
	}

	v := r.Vitals
	b.WriteString("\nCurrent Metrics:\n")
	fmt.Fprintf(&b, "- Heart Rate Variability: %g ms\n", v.HeartRateVariability)
	fmt.Fprintf(&b, "- Systolic Blood Pressure: %g mmHg\n", v.BloodPressure.Systolic)
	fmt.Fprintf(&b, "- Oxygen Level: %g%%\n", v.OxygenLevel)
	fmt.Fprintf(&b, "- G-Force Exposure: %gG\n", v.GForce)
	fmt.Fprintf(&b, "- Performance Score: %g%%\n", v.PerformanceScore)
	fmt.Fprintf(&b, "- Readiness Score: %g%%\n", v.ReadinessScore)

	var d types.DebriefMetrics
	if r.Debrief != nil {
		d = *r.Debrief
	}
	b.WriteString("\nDebrief Metrics:\n")
	fmt.Fprintf(&b, "- Critical Situations: %s\n", orNA(d.CriticalSituations != "", d.CriticalSituations))
	fmt.Fprintf(&b, "- Average Response Time: %sms\n", orNA(d.AvgResponseTime != "", d.AvgResponseTime))
	fmt.Fprintf(&b, "- Time in High G-Force: %sms\n", orNA(d.TimeInHighGs != "", d.TimeInHighGs))

	b.WriteString("\n")
	b.WriteString(responseFormat)
	return b.String()
}

func orNA(ok bool, s string) string {
	if !ok {
		return "N/A"
	}
	return s
}
