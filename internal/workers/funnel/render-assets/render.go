package renderassets

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	apperrors "genieops-engine/internal/common/errors"
	"genieops-engine/internal/common/metrics"
	"genieops-engine/internal/models"
)

// Copy used when the generated content leaves a field empty.
const (
	DefaultAgitation    = "Hidden industry gaps are costing your business money."
	DefaultUpgradeOffer = "Special consulting discount."
	DefaultTitle        = "Modern Growth"
)

var DefaultFeatures = []string{"Strategic Insights", "Autonomous Design", "Nurture Engine"}

// calculatorSeed is the value the calculator input starts with.
const calculatorSeed = 10

type options struct {
	funnelID   int64
	captureURL string
	upgradeURL string
}

type Option func(*options)

// WithFunnel sets the funnel id the capture form submits.
func WithFunnel(id int64) Option {
	return func(o *options) { o.funnelID = id }
}

func WithCaptureURL(url string) Option {
	return func(o *options) {
		if url != "" {
			o.captureURL = url
		}
	}
}

func WithUpgradeURL(url string) Option {
	return func(o *options) {
		if url != "" {
			o.upgradeURL = url
		}
	}
}

// view is the fully defaulted data a render binds to.
type view struct {
	assetType models.AssetType
	color     string
	fg        string
	title     string
	headline  string
	sub       string
	agitation string
	whyUs     string
	upgrade   string
	features  []string
	score     int
	logic     models.AssetLogic
	images    models.Images
}

// Render builds the landing and thank-you documents for one funnel. It does no I/O and never
// mutates its arguments. The only error is a contract violation for an unrecognized asset type.
func Render(content *models.AssetContent, theme models.StrategyTheme, images models.Images, opts ...Option) (*models.RenderedAsset, error) {
	o := options{captureURL: "/api/v1/capture-lead", upgradeURL: "/?view=pricing"}
	for _, opt := range opts {
		opt(&o)
	}

	v, err := newView(content, theme, images)
	if err != nil {
		metrics.AssetsRendered.WithLabelValues(string(theme.AssetType), "contract_violation").Inc()
		return nil, err
	}

	asset, err := v.assetView()
	if err != nil {
		metrics.AssetsRendered.WithLabelValues(string(v.assetType), "contract_violation").Inc()
		return nil, err
	}

	landing, err := document(v.title, v.landingPage(o))
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("render landing page: %w", err))
	}
	thankYou, err := document(v.title, v.thankYouPage(o, asset))
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("render thank-you page: %w", err))
	}

	var post interface{}
	if content != nil {
		post = content.LinkedInPost
	}

	metrics.AssetsRendered.WithLabelValues(string(v.assetType), "ok").Inc()
	return &models.RenderedAsset{
		LandingPage:   landing,
		ThankYou:      thankYou,
		LinkedInPost:  SanitizeLinkedIn(post),
		LinkedInImage: v.images.Social,
	}, nil
}

func newView(content *models.AssetContent, theme models.StrategyTheme, images models.Images) (*view, error) {
	assetType, err := models.ParseAssetType(string(theme.AssetType))
	if err != nil {
		return nil, err
	}
	if content == nil {
		content = &models.AssetContent{}
	}

	color := resolveColor(theme.PrimaryColor)
	v := &view{
		assetType: assetType,
		color:     color,
		fg:        foreground(color),
		title:     firstNonEmpty(theme.Title, DefaultTitle),
		agitation: firstNonEmpty(content.Agitation, DefaultAgitation),
		whyUs:     strings.TrimSpace(content.WhyUs),
		upgrade:   firstNonEmpty(content.UpgradeOfferCopy, DefaultUpgradeOffer),
		score:     models.ClampScore(theme.ConversionScore),
		images: models.Images{
			Background: firstNonEmpty(images.Background, models.FallbackImageURL),
			Detail:     firstNonEmpty(images.Detail, models.FallbackImageURL),
			Social:     firstNonEmpty(images.Social, models.FallbackImageURL),
		},
	}
	v.headline = firstNonEmpty(content.Headline, v.title)
	v.sub = firstNonEmpty(content.Sub, theme.ValuePromise)

	for _, f := range content.Features {
		if f = strings.TrimSpace(f); f != "" {
			v.features = append(v.features, f)
		}
	}
	if len(v.features) == 0 {
		v.features = DefaultFeatures
	}

	v.logic, err = resolveLogic(content.Logic, assetType)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// resolveLogic returns a normalized copy of logic, or the defaults when logic is missing or
// was decoded for another asset type.
func resolveLogic(logic models.AssetLogic, assetType models.AssetType) (models.AssetLogic, error) {
	var out models.AssetLogic
	switch l := logic.(type) {
	case *models.CalculatorLogic:
		if l != nil && assetType == models.AssetCalculator {
			c := *l
			out = &c
		}
	case *models.ChecklistLogic:
		if l != nil && assetType == models.AssetChecklist {
			out = &models.ChecklistLogic{Tips: models.StringList(l.Tips)}
		}
	case *models.ReportLogic:
		if l != nil && assetType == models.AssetReport {
			out = &models.ReportLogic{
				Summary:    l.Summary,
				DataPoints: append([]models.DataPoint(nil), l.DataPoints...),
			}
		}
	}
	if out == nil {
		return models.NewAssetLogic(assetType)
	}
	out.Normalize()
	return out, nil
}

func (v *view) teaser() string {
	if calc, ok := v.logic.(*models.CalculatorLogic); ok {
		return fmt.Sprintf("Calculating %s...", calc.InputLabel)
	}
	return "Reviewing expert tips..."
}

// assetView dispatches on the asset type. Every recognized type has exactly one branch.
func (v *view) assetView() (*html.Node, error) {
	switch v.assetType {
	case models.AssetReport:
		return v.reportView(v.logic.(*models.ReportLogic)), nil
	case models.AssetCalculator:
		return v.calculatorView(v.logic.(*models.CalculatorLogic)), nil
	case models.AssetChecklist:
		return v.checklistView(v.logic.(*models.ChecklistLogic)), nil
	default:
		return nil, apperrors.NewContractViolationError("no renderer for asset_type " + string(v.assetType))
	}
}

func (v *view) reportView(l *models.ReportLogic) *html.Node {
	container := div("bg-white p-10 rounded-[3rem] border border-slate-100 shadow-sm",
		el(atom.H2, class("text-2xl font-black mb-6 text-slate-800 border-b pb-4 text-center"), text("Market Analysis")),
	)
	if s := strings.TrimSpace(l.Summary); s != "" {
		container.AppendChild(p("text-slate-600 mb-8 text-center", s))
	}
	for _, dp := range l.DataPoints {
		pct := formatPercent(dp.Value)
		label := firstNonEmpty(dp.Label, "Metric")
		container.AppendChild(div("mb-6",
			div("flex justify-between mb-2 text-slate-700 text-sm font-bold uppercase",
				el(atom.Span, nil, text(label)),
				el(atom.Span, nil, text(pct+"%")),
			),
			div("h-3 bg-slate-100 rounded-full overflow-hidden",
				el(atom.Div, attrs(
					"class", "h-full shadow-lg",
					"data-label", label,
					"style", fmt.Sprintf("width: %s%%; background-color: %s", pct, v.color),
				)),
			),
		))
	}
	return container
}

func (v *view) calculatorView(l *models.CalculatorLogic) *html.Node {
	unit, _ := json.Marshal(l.Unit)
	script := fmt.Sprintf(
		"function updateCalc() { const v = Number(document.getElementById('liveCalc').value) || 0; "+
			"document.getElementById('resVal').innerText = %s + (v * %s).toLocaleString(); }",
		unit, strconv.FormatFloat(l.Multiplier, 'f', -1, 64))

	return div("text-center p-10 bg-slate-50 rounded-[3rem] border-2 border-dashed border-slate-200",
		p("text-sm font-black text-slate-400 mb-4 uppercase tracking-widest", l.InputLabel),
		el(atom.Input, attrs(
			"type", "number",
			"id", "liveCalc",
			"value", strconv.Itoa(calculatorSeed),
			"oninput", "updateCalc()",
			"class", "text-7xl font-black text-center w-full bg-transparent outline-none mb-4",
			"style", "color: "+v.color,
		)),
		el(atom.P, class("text-xl font-bold text-slate-600"),
			text(l.ResultLabel+": "),
			el(atom.Span, attrs("id", "resVal", "style", "color: "+v.color),
				text(CalculatorResult(l, calculatorSeed))),
		),
		el(atom.Script, nil, text(script)),
	)
}

// CalculatorResult is the text the calculator shows for input, matching the client script.
func CalculatorResult(l *models.CalculatorLogic, input float64) string {
	return l.Unit + localeNumber(input*l.Multiplier)
}

func (v *view) checklistView(l *models.ChecklistLogic) *html.Node {
	list := el(atom.Ul, class("space-y-4"))
	for _, tip := range l.Tips {
		list.AppendChild(el(atom.Li, class("flex items-center gap-4 font-bold text-lg mb-3 text-slate-700 text-left"),
			el(atom.Div, attrs("class", "h-3 w-3 rounded-full shadow-lg", "style", "background-color: "+v.color)),
			el(atom.Span, nil, text(tip)),
		))
	}
	return list
}

func (v *view) landingPage(o options) *html.Node {
	hero := el(atom.Section, class("relative min-h-screen flex items-center justify-center border-b border-white/5"),
		div("absolute inset-0 z-0",
			el(atom.Img, attrs("src", v.images.Background, "alt", "", "class", "w-full h-full object-cover")),
			el(atom.Div, attrs("class", "absolute inset-0", "style", "background-color: "+v.color+"e6")),
		),
		div("relative z-10 max-w-7xl mx-auto px-6 grid lg:grid-cols-2 gap-20 py-20 items-center",
			div("max-w-xl text-left "+v.fg,
				div("inline-block px-5 py-2 rounded-full text-[10px] font-black mb-8 border uppercase tracking-widest", text(string(v.assetType))),
				el(atom.H1, class("text-6xl font-black mb-8 leading-tight tracking-tighter uppercase"), text(v.headline)),
				p("text-2xl opacity-80 mb-12 font-light", v.sub),
				p("text-sm font-bold uppercase tracking-widest mb-8", fmt.Sprintf("%d%% conversion score", v.score)),
				el(atom.A, attrs("href", "#gate", "class", "inline-block px-10 py-5 border-2 rounded-2xl font-black uppercase tracking-tighter", "style", "border-color: "+v.color),
					text("Learn More")),
			),
			div("bg-white p-12 rounded-[4rem] shadow-2xl relative",
				el(atom.Img, attrs("src", v.images.Detail, "alt", "", "class", "rounded-[2.5rem] mb-6 w-full h-72 object-cover shadow-2xl")),
				p("p-6 bg-slate-50 rounded-3xl text-center italic text-slate-500 font-medium font-serif", v.teaser()),
			),
		),
	)

	problem := el(atom.Section, class("bg-white py-32 px-6"),
		div("max-w-4xl mx-auto text-center text-slate-900",
			el(atom.H2, class("text-5xl font-black mb-8 tracking-tighter uppercase italic"), text("The Problem")),
			p("text-slate-600 text-2xl leading-relaxed font-serif italic", v.agitation),
		),
	)

	grid := div("grid md:grid-cols-3 gap-12")
	for i, f := range v.features {
		grid.AppendChild(div("bg-white p-10 rounded-[3rem] shadow-xl border border-slate-100",
			el(atom.Div, attrs("class", "w-12 h-12 rounded-2xl mb-8 flex items-center justify-center font-bold "+v.fg, "style", "background-color: "+v.color),
				text(strconv.Itoa(i+1))),
			p("text-slate-500 leading-relaxed text-center", f),
		))
	}
	solution := el(atom.Section, class("bg-slate-50 py-32 px-6 border-y border-slate-200"),
		div("max-w-6xl mx-auto text-center",
			el(atom.H2, class("text-slate-900 text-4xl font-black mb-16 uppercase tracking-widest"), text("The Solution")),
			grid,
		),
	)
	if v.whyUs != "" {
		solution.FirstChild.AppendChild(p("mt-16 text-slate-700 text-xl", v.whyUs))
	}

	return el(atom.Main, class("font-sans bg-black text-white overflow-x-hidden"),
		hero, problem, solution, v.captureGate(o))
}

func (v *view) captureGate(o options) *html.Node {
	form := el(atom.Form, attrs("method", "post", "action", o.captureURL, "class", "space-y-6"),
		el(atom.Input, attrs("type", "hidden", "name", "magnet_id", "value", strconv.FormatInt(o.funnelID, 10))),
		el(atom.Input, attrs(
			"type", "email",
			"name", "email",
			"required", "",
			"placeholder", "Enter work email",
			"class", "w-full p-6 bg-white/5 border border-white/10 rounded-3xl text-white text-center text-xl",
		)),
		div("px-4 space-y-4 text-left",
			el(atom.Label, class("flex items-center gap-3 text-slate-500 text-xs"),
				el(atom.Input, attrs("type", "checkbox", "name", "terms", "value", "true", "required", "", "class", "w-5 h-5 rounded")),
				text("I agree to Terms & Data Protocol"),
			),
			el(atom.Label, class("flex items-center gap-3 text-slate-500 text-xs"),
				el(atom.Input, attrs("type", "checkbox", "id", "newsletter", "name", "newsletter", "value", "true", "class", "w-5 h-5 rounded")),
				text("Send daily insights & offers"),
			),
		),
		el(atom.Button, attrs(
			"type", "submit",
			"class", "w-full py-6 font-black text-2xl rounded-3xl uppercase shadow-2xl "+v.fg,
			"style", "background-color: "+v.color,
		), text("Deploy "+string(v.assetType))),
	)

	return el(atom.Section, attrs("id", "gate", "class", "py-40 bg-white px-6"),
		div("max-w-xl mx-auto bg-slate-950 p-12 rounded-[4rem] text-center shadow-2xl",
			el(atom.H3, class("text-3xl font-black text-white mb-6 uppercase tracking-tighter italic"), text("Get Instant Access")),
			form,
		),
	)
}

func (v *view) thankYouPage(o options, asset *html.Node) *html.Node {
	return el(atom.Section, class("relative min-h-screen flex items-center justify-center font-sans overflow-hidden p-6"),
		div("absolute inset-0 z-0",
			el(atom.Img, attrs("src", v.images.Background, "alt", "", "class", "w-full h-full object-cover")),
			el(atom.Div, attrs("class", "absolute inset-0", "style", "background-color: "+v.color+"f2")),
		),
		div("relative z-10 max-w-4xl w-full",
			el(atom.Div, attrs("class", "bg-white p-12 rounded-[4rem] shadow-2xl border-t-[16px]", "style", "border-color: "+v.color),
				el(atom.H1, class("text-4xl font-black mb-8 text-slate-950 uppercase text-center tracking-tighter"), text("Results Ready")),
				div("mb-12", asset),
				el(atom.Div, attrs("class", "text-center p-12 rounded-[3.5rem] shadow-2xl "+v.fg, "style", "background-color: "+v.color),
					el(atom.H3, class("text-3xl font-black mb-4 uppercase tracking-tighter"), text("Exclusive Offer")),
					p("text-xl mb-10 opacity-90 font-medium", v.upgrade),
					el(atom.A, attrs("href", o.upgradeURL, "class", "inline-block px-12 py-5 bg-white text-slate-900 font-black text-xl rounded-2xl shadow-xl uppercase tracking-widest"),
						text("Unlock Pro version")),
				),
			),
		),
	)
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

// localeNumber formats like Number.prototype.toLocaleString in en-US: grouped thousands and
// at most three fraction digits.
func localeNumber(f float64) string {
	f = math.Round(f*1000) / 1000
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}

	digits := strconv.FormatFloat(math.Abs(f), 'f', -1, 64)
	whole, frac, _ := strings.Cut(digits, ".")

	var b strings.Builder
	if f < 0 {
		b.WriteByte('-')
	}
	for i := 0; i < len(whole); i++ {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(whole[i])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
