package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Decoders in this file turn loosely typed model output into the typed records above.
// They never fail on a missing or oddly typed field; only an unknown asset type is an error.

// preferredKeys are tried, in order, when a multi-key mapping has to be flattened to text.
var preferredKeys = []string{"label", "tip", "text", "title", "content", "post", "value"}

// PlainText flattens v to a string. Strings are returned trimmed, numbers are formatted,
// and a mapping is unwrapped to its value (recursively) when it has one key.
func PlainText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]interface{}:
		if len(t) == 0 {
			return ""
		}
		if len(t) == 1 {
			for _, inner := range t {
				return PlainText(inner)
			}
		}
		for _, k := range preferredKeys {
			if inner, ok := t[k]; ok {
				return PlainText(inner)
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return PlainText(t[keys[0]])
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := PlainText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// StringField reads raw[key] as plain text.
func StringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s := PlainText(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// StringList reads v as a list of plain strings, dropping empties. A lone string
// becomes a one-element list.
func StringList(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := PlainText(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}

// Number reads v as a float. Numeric strings such as "1.5", "85%" or "$2,000" are accepted.
func Number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		cleaned := strings.Map(func(r rune) rune {
			switch {
			case r >= '0' && r <= '9', r == '.', r == '-':
				return r
			}
			return -1
		}, t)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func DecodeBrief(raw map[string]interface{}) Brief {
	return Brief{
		ICPProfile:     StringField(raw, "icp_profile", "icp"),
		PainPoints:     StringField(raw, "pain_points"),
		BrandVoice:     StringField(raw, "brand_voice"),
		OfferType:      StringField(raw, "offer_type"),
		ConversionGoal: StringField(raw, "conversion_goal"),
		ExistingTopics: StringList(raw["existing_topics"]),
	}
}

// DecodeStrategyTheme resolves the key aliases models use (type, primary_hex), parses the
// asset type and clamps the conversion score.
func DecodeStrategyTheme(raw map[string]interface{}) (StrategyTheme, error) {
	assetType, err := ParseAssetType(StringField(raw, "asset_type", "type"))
	if err != nil {
		return StrategyTheme{}, err
	}

	score := 0
	if n, ok := Number(raw["conversion_score"]); ok {
		score = int(math.Round(n))
	}

	return StrategyTheme{
		Title:           StringField(raw, "title"),
		AssetType:       assetType,
		ValuePromise:    StringField(raw, "value_promise"),
		ConversionScore: ClampScore(score),
		PrimaryColor:    StringField(raw, "primary_color", "primary_hex"),
		BgKeyword:       StringField(raw, "bg_keyword"),
		ImageKeyword:    StringField(raw, "image_keyword"),
		LiImageKeyword:  StringField(raw, "li_image_keyword"),
	}, nil
}

// DecodeAssetContent builds AssetContent for assetType from raw model output.
func DecodeAssetContent(raw map[string]interface{}, assetType AssetType) (*AssetContent, error) {
	logic, err := decodeLogic(raw["asset_logic"], assetType)
	if err != nil {
		return nil, err
	}

	return &AssetContent{
		Type:             assetType,
		Headline:         StringField(raw, "headline"),
		Sub:              StringField(raw, "sub", "subheadline"),
		Agitation:        StringField(raw, "agitation"),
		Features:         StringList(raw["features"]),
		WhyUs:            StringField(raw, "why_us"),
		UpgradeOfferCopy: StringField(raw, "upgrade_offer_copy", "upgrade_offer"),
		Emails:           decodeEmails(raw["emails"]),
		Logic:            logic,
		LinkedInPost:     raw["linkedin_post"],
	}, nil
}

func decodeEmails(v interface{}) []NurtureStep {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]NurtureStep, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case map[string]interface{}:
			step := NurtureStep{
				Subject: StringField(t, "subject", "title"),
				Body:    StringField(t, "body", "content", "text"),
			}
			if step.Subject != "" || step.Body != "" {
				out = append(out, step)
			}
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, NurtureStep{Body: s})
			}
		}
	}
	return out
}

func decodeLogic(v interface{}, assetType AssetType) (AssetLogic, error) {
	logic, err := NewAssetLogic(assetType)
	if err != nil {
		return nil, err
	}
	raw, _ := v.(map[string]interface{})

	switch l := logic.(type) {
	case *CalculatorLogic:
		*l = CalculatorLogic{
			InputLabel:  StringField(raw, "input_label"),
			Unit:        StringField(raw, "unit"),
			ResultLabel: StringField(raw, "result_label"),
		}
		if m, ok := Number(raw["multiplier"]); ok {
			l.Multiplier = m
		}
	case *ChecklistLogic:
		l.Tips = StringList(raw["tips"])
	case *ReportLogic:
		l.Summary = StringField(raw, "summary")
		l.DataPoints = decodeDataPoints(raw["data_points"])
	}

	logic.Normalize()
	return logic, nil
}

func decodeDataPoints(v interface{}) []DataPoint {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]DataPoint, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		value, _ := Number(m["value"])
		out = append(out, DataPoint{
			Label: StringField(m, "label", "name"),
			Value: value,
		})
	}
	return out
}
