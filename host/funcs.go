package host

import (
	"bytes"
	"fmt"
	"html"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/a-h/templ"
	"github.com/araddon/dateparse"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/goodsign/monday"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Func is a helper callable from template expressions.
type Func func(args ...any) (any, error)

var (
	markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))
	ugcPolicy        = bluemonday.UGCPolicy()
	jsEscaper        = strings.NewReplacer("<", `\u003c`, ">", `\u003e`, "&", `\u0026`, "\u2028", `\u2028`, "\u2029", `\u2029`)
	jsQuoteEscaper   = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	unsafeSchemes    = []string{"javascript:", "vbscript:", "data:"}
)

// Builtins are the helpers every template can call. Names avoid the
// expression language's own builtins.
var Builtins = map[string]Func{
	"e":             func(args ...any) (any, error) { return Escape(arg(args, 0)), nil },
	"e_js":          func(args ...any) (any, error) { return EscapeJS(arg(args, 0)) },
	"e_url":         func(args ...any) (any, error) { return EscapeURL(arg(args, 0)), nil },
	"raw":           func(args ...any) (any, error) { return raw(arg(args, 0)), nil },
	"str":           func(args ...any) (any, error) { return ToString(arg(args, 0)), nil },
	"truthy":        func(args ...any) (any, error) { return Truthy(arg(args, 0)), nil },
	"falsy":         func(args ...any) (any, error) { return Empty(arg(args, 0)), nil },
	"isset":         isset,
	"empty":         func(args ...any) (any, error) { return Empty(arg(args, 0)), nil },
	"count":         func(args ...any) (any, error) { return Count(arg(args, 0)), nil },
	"assoc":         assoc,
	"in_array":      inArray,
	"implode":       implode,
	"ucfirst":       func(args ...any) (any, error) { return upperFirst(ToString(arg(args, 0))), nil },
	"json_encode":   jsonEncode,
	"js":            jsLiteral,
	"class_list":    func(args ...any) (any, error) { return ClassList(arg(args, 0)), nil },
	"style_list":    func(args ...any) (any, error) { return StyleList(arg(args, 0)), nil },
	"number_format": numberFormat,
	"money":         money,
	"percent":       percent,
	"bytes":         humanBytes,
	"ago":           ago,
	"date_format":   dateFormat,
	"slug":          func(args ...any) (any, error) { return slug.Make(ToString(arg(args, 0))), nil },
	"title":         func(args ...any) (any, error) { return cases.Title(language.English).String(ToString(arg(args, 0))), nil },
	"limit":         limit,
	"nl2br":         nl2br,
	"markdown":      func(args ...any) (any, error) { return Markdown(ToString(arg(args, 0))) },
	"sanitize":      func(args ...any) (any, error) { return HTML(ugcPolicy.Sanitize(ToString(arg(args, 0)))), nil },
	"dump":          dump,
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func raw(v any) any {
	if c, ok := v.(templ.Component); ok {
		return c
	}
	if h, ok := v.(Htmlable); ok {
		return HTML(h.ToHTML())
	}
	return HTML(ToString(v))
}

func isset(args ...any) (any, error) {
	if len(args) == 0 {
		return false, nil
	}
	for _, a := range args {
		if a == nil {
			return false, nil
		}
	}
	return true, nil
}

func assoc(args ...any) (any, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("assoc: odd number of arguments")
	}
	out := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		out[ToString(args[i])] = args[i+1]
	}
	return out, nil
}

func inArray(args ...any) (any, error) {
	needle := arg(args, 0)
	_, seq, err := iterate(arg(args, 1))
	if err != nil {
		return false, err
	}
	for _, v := range seq {
		if LooseEqual(needle, v) {
			return true, nil
		}
	}
	return false, nil
}

func implode(args ...any) (any, error) {
	glue := ToString(arg(args, 0))
	_, seq, err := iterate(arg(args, 1))
	if err != nil {
		return "", err
	}
	var parts []string
	for _, v := range seq {
		parts = append(parts, ToString(v))
	}
	return strings.Join(parts, glue), nil
}

// EscapeJS encodes v as a JSON value that is safe inside a script element.
func EscapeJS(v any) (HTML, error) {
	if h, ok := v.(HTML); ok {
		v = string(h)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return HTML(jsEscaper.Replace(string(b))), nil
}

// EscapeURL drops URLs with script-capable schemes and HTML-escapes the rest.
func EscapeURL(v any) HTML {
	s := ToString(v)
	check := strings.ToLower(strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, s))
	for _, scheme := range unsafeSchemes {
		if strings.HasPrefix(check, scheme) && !strings.HasPrefix(check, "data:image/") {
			return "#"
		}
	}
	return HTML(html.EscapeString(s))
}

func jsonEncode(args ...any) (any, error) {
	var (
		b   []byte
		err error
	)
	if Truthy(arg(args, 1)) {
		b, err = json.MarshalIndent(arg(args, 0), "", "    ")
	} else {
		b, err = json.Marshal(arg(args, 0))
	}
	if err != nil {
		return nil, err
	}
	return HTML(jsEscaper.Replace(string(b))), nil
}

// jsLiteral renders scalars as JSON and everything else through JSON.parse
// so large literals parse fast and never break out of the script.
func jsLiteral(args ...any) (any, error) {
	v := arg(args, 0)
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	encoded := jsEscaper.Replace(string(b))
	switch v.(type) {
	case nil, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return HTML(encoded), nil
	}
	return HTML("JSON.parse('" + jsQuoteEscaper.Replace(encoded) + "')"), nil
}

// ClassList builds a class attribute value. Lists of [class] or
// [class, condition] pairs keep their order; maps are read in key order.
func ClassList(v any) string {
	return strings.Join(conditionalList(v, func(s string) string { return strings.TrimSpace(s) }), " ")
}

// StyleList builds a style attribute value, each declaration ending with ';'.
func StyleList(v any) string {
	return strings.Join(conditionalList(v, func(s string) string {
		s = strings.TrimRight(strings.TrimSpace(s), ";")
		if s == "" {
			return ""
		}
		return s + ";"
	}), " ")
}

func conditionalList(v any, clean func(string) string) []string {
	var out []string
	add := func(s string) {
		if s = clean(s); s != "" {
			out = append(out, s)
		}
	}
	switch x := v.(type) {
	case nil:
	case string:
		add(x)
	case []any:
		for _, item := range x {
			pair, ok := item.([]any)
			switch {
			case !ok:
				add(ToString(item))
			case len(pair) == 1:
				add(ToString(pair[0]))
			case len(pair) >= 2 && Truthy(pair[1]):
				add(ToString(pair[0]))
			}
		}
	default:
		m, err := cast.ToStringMapE(v)
		if err != nil {
			for _, s := range cast.ToStringSlice(v) {
				add(s)
			}
			break
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, comparePositional)
		for _, k := range keys {
			if _, err := strconv.Atoi(k); err == nil {
				add(ToString(m[k]))
			} else if Truthy(m[k]) {
				add(k)
			}
		}
	}
	return out
}

// comparePositional orders numeric keys first, numerically, then the rest.
func comparePositional(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai - bi
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

func printer(locale any) *message.Printer {
	tag := language.English
	if s := ToString(locale); s != "" {
		if t, err := language.Parse(s); err == nil {
			tag = t
		}
	}
	return message.NewPrinter(tag)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case nil:
		return decimal.Zero, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(f), nil
}

func numberFormat(args ...any) (any, error) {
	d, err := toDecimal(arg(args, 0))
	if err != nil {
		return nil, err
	}
	decimals := cast.ToInt(arg(args, 1))
	f, _ := d.Round(int32(decimals)).Float64()
	return printer(arg(args, 2)).Sprint(number.Decimal(f,
		number.MinFractionDigits(decimals),
		number.MaxFractionDigits(decimals),
	)), nil
}

// money formats an amount as "<ISO code> <grouped amount>", rounded to two
// decimals. The code defaults to USD.
func money(args ...any) (any, error) {
	d, err := toDecimal(arg(args, 0))
	if err != nil {
		return nil, err
	}
	code := strings.ToUpper(ToString(arg(args, 1)))
	if code == "" {
		code = "USD"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("money: %w", err)
	}
	f, _ := d.Round(2).Float64()
	amount := printer(arg(args, 2)).Sprint(number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	return unit.String() + " " + amount, nil
}

// percent treats the value as a percentage already: percent(12.5, 1) is "12.5%".
func percent(args ...any) (any, error) {
	d, err := toDecimal(arg(args, 0))
	if err != nil {
		return nil, err
	}
	decimals := int32(cast.ToInt(arg(args, 1)))
	return d.StringFixed(decimals) + "%", nil
}

func humanBytes(args ...any) (any, error) {
	n, err := cast.ToUint64E(arg(args, 0))
	if err != nil {
		return nil, err
	}
	return humanize.Bytes(n), nil
}

// ToTime accepts times, unix seconds and date strings in any common layout.
func ToTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *x, nil
	case string:
		return dateparse.ParseAny(strings.TrimSpace(x))
	case HTML:
		return dateparse.ParseAny(strings.TrimSpace(string(x)))
	}
	secs, err := cast.ToInt64E(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot use %T as a time", v)
	}
	return time.Unix(secs, 0).UTC(), nil
}

func ago(args ...any) (any, error) {
	t, err := ToTime(arg(args, 0))
	if err != nil {
		return nil, err
	}
	return humanize.Time(t), nil
}

// dateFormat formats with a Go layout (default 2006-01-02) and a monday
// locale such as "de_DE" (default en_US).
func dateFormat(args ...any) (any, error) {
	t, err := ToTime(arg(args, 0))
	if err != nil {
		return nil, err
	}
	layout := ToString(arg(args, 1))
	if layout == "" {
		layout = "2006-01-02"
	}
	var locale monday.Locale = monday.LocaleEnUS
	if l := ToString(arg(args, 2)); l != "" {
		locale = monday.Locale(l)
	}
	return monday.Format(t, layout, locale), nil
}

func limit(args ...any) (any, error) {
	s := ToString(arg(args, 0))
	n := cast.ToInt(arg(args, 1))
	if n <= 0 {
		n = 100
	}
	end := "..."
	if len(args) > 2 {
		end = ToString(args[2])
	}
	if utf8.RuneCountInString(s) <= n {
		return s, nil
	}
	return strings.TrimRight(string([]rune(s)[:n]), " ") + end, nil
}

func nl2br(args ...any) (any, error) {
	s := html.EscapeString(ToString(arg(args, 0)))
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return HTML(strings.ReplaceAll(s, "\n", "<br>\n")), nil
}

// Markdown converts GitHub flavoured markdown and sanitizes the result.
func Markdown(src string) (HTML, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return HTML(ugcPolicy.Sanitize(buf.String())), nil
}

func dump(args ...any) (any, error) {
	return HTML(`<pre class="blade-dump">` + html.EscapeString(fmt.Sprintf("%#v", arg(args, 0))) + "</pre>"), nil
}
