// Package nmea decodes NMEA-0183 ASCII sentences into named variables and
// merges them into the shared boat state, following the format-tag
// dispatch table used by the recognised sentences.
package nmea

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a malformed field encountered while decoding one
// sentence. The sentence is discarded with no state mutation; it does not
// stop the reader.
type ParseError struct {
	Code     string
	Sentence string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("nmea: sentence %q translation error processing %q: %v", e.Code, e.Sentence, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// varDef pairs how many comma-separated fields a variable consumes with the
// format tag that converts them.
type varDef struct {
	fieldCount int
	tag        string
}

// variableSchema maps each variable name the decoder can produce to its
// field count and conversion tag. See the format tag table in decodeField.
var variableSchema = map[string]varDef{
	"time":     {1, "hhmmss.ss"},
	"status":   {1, "A"},
	"lat":      {2, "llll.llll,a"},
	"long":     {2, "yyyyy.yyyy,a"},
	"SOG":      {1, "x.x"},
	"TMG":      {1, "x.x"},
	"date":     {1, "ddmmyy"},
	"mag_var":  {2, "x.x,a"},
	"datetime": {6, "hhmmss.ss,dd,dd,yyyy,tz_h,tz_m"},
	"XTE":      {2, "x.x,R"},
	"XTE_units": {1, "A"},
	"ACir":     {1, "A"},
	"APer":     {1, "A"},
	"BOD":      {2, "x.x,T"},
	"Did":      {1, "s"},
	"BPD":      {2, "x.x,T"},
	"HTS":      {2, "x.x,T"},
	"HDM":      {1, "x.x"},
	"DBT":      {1, "x.x"},
	"TOFF":     {1, "x.x"},
	"STW":      {1, "x.x"},
	"DW":       {1, "x.x"},
}

// sentenceSchema maps each recognised talker+code to the ordered variable
// names its comma-separated fields decode into. "" skips one field.
var sentenceSchema = map[string][]string{
	"RMC": {"time", "status", "lat", "long", "SOG", "TMG", "date", "mag_var"},
	"ZDA": {"datetime"},
	"APB": {"status", "", "XTE", "XTE_units", "ACir", "APer", "BOD", "Did", "BPD", "HTS"},
	"HDG": {"", "", "", "mag_var"},
	"HDM": {"HDM"},
	"DPT": {"DBT", "TOFF"},
	"VHW": {"", "", "", "", "STW"},
	"VLW": {"", "", "DW"},
}

// Value is a decoded sentence field: exactly one of the accessors below is
// meaningful, matching the variant the producing format tag returns.
type Value struct {
	Str   string
	Float float64
	Int   int64
	isStr bool
	isInt bool
}

func strValue(s string) Value  { return Value{Str: s, isStr: true} }
func floatValue(f float64) Value { return Value{Float: f} }
func intValue(i int64) Value   { return Value{Int: i, isInt: true} }

func (v Value) IsString() bool { return v.isStr }
func (v Value) IsInt() bool    { return v.isInt }

// microSeconds returns the fractional part of a "12.345" style string as an
// integer scaled to microseconds (right-padded to six digits), or 0 if there
// is no fractional part.
func microSeconds(raw string) int {
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0
	}
	frac := parts[1]
	for len(frac) < 6 {
		frac += "0"
	}
	frac = frac[:6]
	n, err := strconv.Atoi(frac)
	if err != nil {
		return 0
	}
	return n
}

func sign(symbol string, positive string) float64 {
	if symbol == positive {
		return 1
	}
	return -1
}

// gpsDate renders a ddmmyy field as an ISO date, correcting for the GPS week
// number rollover: years before 1980 are two-digit and get +2000; years
// still read as before 2020 are shifted forward by 1024 weeks because the
// GPS epoch counter wrapped and this decoder's correction window assumes
// the receiver firmware was last patched for rollovers up to 2019.
func gpsDate(day, month, year string) (string, error) {
	d, err := strconv.Atoi(day)
	if err != nil {
		return "", err
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return "", err
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", err
	}
	if y < 1980 {
		y += 2000
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if y < 2020 {
		t = t.AddDate(0, 0, 1024*7)
	}
	return t.Format("2006-01-02"), nil
}

func toTrue(amount float64, flag string, magVar float64) float64 {
	if flag == "M" {
		return amount - magVar
	}
	return amount
}

// decodeField converts the raw comma-separated fields consumed for one
// variable into its Value, per the format tag table. Returns false if the
// fields are incomplete (any consumed field empty) — the variable is simply
// absent from this sentence, not an error.
func decodeField(fields []string, tag string, magVar float64) (Value, bool, error) {
	for _, f := range fields {
		if f == "" {
			return Value{}, false, nil
		}
	}
	switch tag {
	case "hhmmss.ss":
		raw := fields[0]
		if len(raw) < 6 {
			return Value{}, false, fmt.Errorf("short time field %q", raw)
		}
		hh, err1 := strconv.Atoi(raw[0:2])
		mm, err2 := strconv.Atoi(raw[2:4])
		ss, err3 := strconv.Atoi(raw[4:6])
		if err1 != nil || err2 != nil || err3 != nil {
			return Value{}, false, fmt.Errorf("malformed time field %q", raw)
		}
		us := microSeconds(raw)
		t := time.Date(0, 1, 1, hh, mm, ss, us*1000, time.UTC)
		return strValue(t.Format("15:04:05.000000")), true, nil

	case "ddmmyy":
		raw := fields[0]
		if len(raw) < 6 {
			return Value{}, false, fmt.Errorf("short date field %q", raw)
		}
		iso, err := gpsDate(raw[0:2], raw[2:4], raw[4:])
		if err != nil {
			return Value{}, false, err
		}
		return strValue(iso), true, nil

	case "llll.llll,a":
		raw, hemi := fields[0], fields[1]
		if len(raw) < 2 {
			return Value{}, false, fmt.Errorf("short lat field %q", raw)
		}
		deg, err1 := strconv.ParseFloat(raw[0:2], 64)
		min, err2 := strconv.ParseFloat(raw[2:], 64)
		if err1 != nil || err2 != nil {
			return Value{}, false, fmt.Errorf("malformed lat field %q", raw)
		}
		return floatValue((deg + min/60.0) * sign(hemi, "N")), true, nil

	case "yyyyy.yyyy,a":
		raw, hemi := fields[0], fields[1]
		if len(raw) < 3 {
			return Value{}, false, fmt.Errorf("short long field %q", raw)
		}
		deg, err1 := strconv.ParseFloat(raw[0:3], 64)
		min, err2 := strconv.ParseFloat(raw[3:], 64)
		if err1 != nil || err2 != nil {
			return Value{}, false, fmt.Errorf("malformed long field %q", raw)
		}
		return floatValue((deg + min/60.0) * sign(hemi, "E")), true, nil

	case "x.x":
		f, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Value{}, false, fmt.Errorf("malformed float field %q", fields[0])
		}
		return floatValue(f), true, nil

	case "x.x,a":
		f, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Value{}, false, fmt.Errorf("malformed float field %q", fields[0])
		}
		return floatValue(f * sign(fields[1], "E")), true, nil

	case "x.x,R":
		f, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Value{}, false, fmt.Errorf("malformed float field %q", fields[0])
		}
		return floatValue(f * sign(fields[1], "R")), true, nil

	case "x.x,T":
		f, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Value{}, false, fmt.Errorf("malformed float field %q", fields[0])
		}
		return floatValue(toTrue(f, fields[1], magVar)), true, nil

	case "A":
		return strValue(fields[0]), true, nil

	case "s":
		return strValue(fields[0]), true, nil

	case "x":
		i, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return Value{}, false, fmt.Errorf("malformed int field %q", fields[0])
		}
		return intValue(i), true, nil

	case "hhmmss.ss,dd,dd,yyyy,tz_h,tz_m":
		timeRaw := fields[0]
		if len(timeRaw) < 6 {
			return Value{}, false, fmt.Errorf("short time field %q", timeRaw)
		}
		day, err1 := strconv.Atoi(fields[1])
		month, err2 := strconv.Atoi(fields[2])
		year, err3 := strconv.Atoi(fields[3])
		tzH, err4 := strconv.Atoi(fields[4])
		tzM, err5 := strconv.Atoi(fields[5])
		hh, err6 := strconv.Atoi(timeRaw[0:2])
		mm, err7 := strconv.Atoi(timeRaw[2:4])
		ss, err8 := strconv.Atoi(timeRaw[4:6])
		for _, e := range []error{err1, err2, err3, err4, err5, err6, err7, err8} {
			if e != nil {
				return Value{}, false, fmt.Errorf("malformed ZDA fields: %w", e)
			}
		}
		us := microSeconds(timeRaw)
		loc := time.FixedZone("", (tzH*60+tzM)*60)
		t := time.Date(year, time.Month(month), day, hh, mm, ss, us*1000, loc)
		return strValue(t.Format(time.RFC3339Nano)), true, nil
	}
	return Value{}, false, fmt.Errorf("unsupported format tag %q", tag)
}

// sentenceData extracts the variables named by varNames, in order, from the
// comma-separated fields of an NMEA sentence (the talker+code and leading
// '$' already stripped by the caller).
func sentenceData(fields []string, varNames []string, magVar float64) (map[string]Value, error) {
	result := make(map[string]Value)
	for _, name := range varNames {
		if name == "" {
			if len(fields) > 0 {
				fields = fields[1:]
			}
			continue
		}
		def, ok := variableSchema[name]
		if !ok {
			continue
		}
		n := def.fieldCount
		if n > len(fields) {
			n = len(fields)
		}
		consumed := fields[:n]
		fields = fields[n:]

		value, present, err := decodeField(consumed, def.tag, magVar)
		if err != nil {
			return nil, err
		}
		if present {
			result[name] = value
		}
	}
	return result, nil
}

// splitSentence strips the leading '$' and talker+code, the trailing
// checksum if present, and splits the remaining payload on commas.
func splitSentence(sentence string) (code string, fields []string) {
	if len(sentence) < 6 {
		return "", nil
	}
	code = sentence[3:6]
	rest := sentence
	if len(rest) > 7 {
		rest = rest[7:]
	} else {
		rest = ""
	}
	rest = strings.TrimRight(rest, "\r\n")
	if idx := strings.LastIndexByte(rest, '*'); idx >= 0 && idx == len(rest)-3 {
		rest = rest[:idx]
	}
	return code, strings.Split(rest, ",")
}

// Sink receives decoded sentence variables for merge into the shared store.
// MergeValue stores one decoded variable; Delete removes the named key.
type Sink interface {
	MergeValue(name string, v Value)
	Delete(name string)
}

// Decode parses one NMEA sentence and applies its variables to sink,
// following the status='A'/'V' merge-or-delete rule: a 'V' (invalid fix)
// sentence keeps only time/date/status and deletes every other field this
// sentence would otherwise have produced, since stale navigation data must
// not linger in the shared store.
func Decode(sentence string, sink Sink, magVar float64) error {
	if len(sentence) <= 9 {
		return nil
	}
	code, fields := splitSentence(sentence)
	varNames, ok := sentenceSchema[code]
	if !ok {
		return nil
	}

	data, err := sentenceData(fields, varNames, magVar)
	if err != nil {
		return &ParseError{Code: code, Sentence: sentence, Err: err}
	}

	status := "A"
	if v, ok := data["status"]; ok && v.IsString() {
		status = v.Str
	}

	if status == "A" {
		for name, v := range data {
			sink.MergeValue(name, v)
		}
		return nil
	}

	for _, name := range varNames {
		switch name {
		case "", "time", "date", "status":
			if v, ok := data[name]; ok {
				sink.MergeValue(name, v)
			}
		default:
			sink.Delete(name)
		}
	}
	return nil
}
