package models

import (
	"encoding/json"
	"strings"
	"time"

	"genieops-engine/internal/common/errors"
)

// AssetType is the closed set of lead magnet shapes the renderer can produce.
type AssetType string

const (
	AssetCalculator AssetType = "Calculator"
	AssetChecklist  AssetType = "Checklist"
	AssetReport     AssetType = "Report"
)

var assetTypes = []AssetType{AssetCalculator, AssetChecklist, AssetReport}

// ParseAssetType accepts the three tags case-insensitively. Anything else is a contract
// violation; there is deliberately no fallback type.
func ParseAssetType(s string) (AssetType, error) {
	trimmed := strings.TrimSpace(s)
	for _, t := range assetTypes {
		if strings.EqualFold(trimmed, string(t)) {
			return t, nil
		}
	}
	return "", errors.NewContractViolationError("unrecognized asset_type " + quote(s)).
		WithMetadata("asset_type", s)
}

func (t AssetType) Valid() bool {
	_, err := ParseAssetType(string(t))
	return err == nil
}

func quote(s string) string {
	if s == "" {
		return "(empty)"
	}
	return `"` + s + `"`
}

// Brief is the Intake agent's structured reading of a free-text prompt.
type Brief struct {
	ICPProfile     string   `json:"icp_profile"`
	PainPoints     string   `json:"pain_points"`
	BrandVoice     string   `json:"brand_voice"`
	OfferType      string   `json:"offer_type"`
	ConversionGoal string   `json:"conversion_goal"`
	ExistingTopics []string `json:"existing_topics"`
}

// StrategyTheme is the Director's pick of idea, asset shape and visual direction.
type StrategyTheme struct {
	Title           string    `json:"title"`
	AssetType       AssetType `json:"asset_type"`
	ValuePromise    string    `json:"value_promise"`
	ConversionScore int       `json:"conversion_score"`
	PrimaryColor    string    `json:"primary_color"`
	BgKeyword       string    `json:"bg_keyword"`
	ImageKeyword    string    `json:"image_keyword"`
	LiImageKeyword  string    `json:"li_image_keyword"`
}

// ClampScore bounds a conversion score to [0,100].
func ClampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// NurtureStep is one email of the nurture sequence.
type NurtureStep struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// AssetLogic is the type-specific payload behind the interactive part of an asset.
// Exactly one implementation exists per AssetType.
type AssetLogic interface {
	Type() AssetType
	// Normalize fills documented defaults in place. It is idempotent.
	Normalize()
}

type CalculatorLogic struct {
	InputLabel  string  `json:"input_label"`
	Multiplier  float64 `json:"multiplier"`
	Unit        string  `json:"unit"`
	ResultLabel string  `json:"result_label"`
}

func (l *CalculatorLogic) Type() AssetType { return AssetCalculator }

func (l *CalculatorLogic) Normalize() {
	if l.InputLabel == "" {
		l.InputLabel = "Data"
	}
	if l.Multiplier == 0 {
		l.Multiplier = 1.5
	}
	if l.Unit == "" {
		l.Unit = "$"
	}
	if l.ResultLabel == "" {
		l.ResultLabel = "Result"
	}
}

type ChecklistLogic struct {
	Tips []string `json:"tips"`
}

func (l *ChecklistLogic) Type() AssetType { return AssetChecklist }

func (l *ChecklistLogic) Normalize() {
	if len(l.Tips) == 0 {
		l.Tips = []string{"Review strategy 1", "Review strategy 2"}
	}
}

type DataPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type ReportLogic struct {
	Summary    string      `json:"summary"`
	DataPoints []DataPoint `json:"data_points"`
}

func (l *ReportLogic) Type() AssetType { return AssetReport }

func (l *ReportLogic) Normalize() {
	if len(l.DataPoints) == 0 {
		l.DataPoints = []DataPoint{{Label: "Potential", Value: 85}}
	}
	for i := range l.DataPoints {
		l.DataPoints[i].Value = clampPercent(l.DataPoints[i].Value)
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// NewAssetLogic returns an empty, normalized variant for t.
func NewAssetLogic(t AssetType) (AssetLogic, error) {
	var logic AssetLogic
	switch t {
	case AssetCalculator:
		logic = &CalculatorLogic{}
	case AssetChecklist:
		logic = &ChecklistLogic{}
	case AssetReport:
		logic = &ReportLogic{}
	default:
		_, err := ParseAssetType(string(t))
		return nil, err
	}
	logic.Normalize()
	return logic, nil
}

// AssetContent is the Mastermind's copy for one funnel.
type AssetContent struct {
	Type             AssetType     `json:"asset_type"`
	Headline         string        `json:"headline"`
	Sub              string        `json:"sub"`
	Agitation        string        `json:"agitation"`
	Features         []string      `json:"features"`
	WhyUs            string        `json:"why_us"`
	UpgradeOfferCopy string        `json:"upgrade_offer_copy"`
	Emails           []NurtureStep `json:"emails"`
	Logic            AssetLogic    `json:"asset_logic"`

	// LinkedInPost is kept as the model produced it; it is sometimes a mapping
	// and is sanitized at render time.
	LinkedInPost interface{} `json:"linkedin_post"`
}

// UnmarshalJSON decodes the stored blob, dispatching asset_logic on asset_type.
func (c *AssetContent) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := ParseAssetType(StringField(raw, "asset_type"))
	if err != nil {
		return err
	}
	decoded, err := DecodeAssetContent(raw, t)
	if err != nil {
		return err
	}
	*c = *decoded
	return nil
}

// RenderedAsset is the derived output stored on the funnel record.
type RenderedAsset struct {
	LandingPage   string `json:"landing_page_markup"`
	ThankYou      string `json:"thank_you_markup"`
	LinkedInPost  string `json:"linkedin_post"`
	LinkedInImage string `json:"linkedin_image_url"`
}

// FallbackImageURL stands in for any picture the image search could not supply.
const FallbackImageURL = "https://images.pexels.com/photos/3184291/pexels-photo-3184291.jpeg"

// Images are the three externally fetched pictures a render uses.
type Images struct {
	Background string `json:"background"`
	Detail     string `json:"detail"`
	Social     string `json:"social"`
}

// Funnel is the persisted lead magnet record.
type Funnel struct {
	ID        int64          `json:"id"`
	Brief     Brief          `json:"brief"`
	Theme     StrategyTheme  `json:"theme"`
	Content   *AssetContent  `json:"content,omitempty"`
	Rendered  *RenderedAsset `json:"rendered,omitempty"`
	Emails    []NurtureStep  `json:"email_nurture_sequence,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Step returns the nurture email for stage, if the sequence has one.
func (f *Funnel) Step(stage int) (NurtureStep, bool) {
	if f == nil || stage < 0 || stage >= len(f.Emails) {
		return NurtureStep{}, false
	}
	return f.Emails[stage], true
}

// FunnelSummary is a listing row.
type FunnelSummary struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	AssetType       AssetType `json:"type"`
	ConversionScore int       `json:"conversion_score"`
	ICPProfile      string    `json:"icp_profile"`
	Generated       bool      `json:"generated"`
	CreatedAt       time.Time `json:"created_at"`
}
