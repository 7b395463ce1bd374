package song

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind classifies an instrument argument value.
type ValueKind int

const (
	ValNum ValueKind = iota
	ValStr
	ValIdent
	ValJSON
	ValVendor
)

// Value is one parsed `k=v` argument of an inst declaration. Vendor values
// carry the `gb:a,b,c` form; JSON values carry a decoded object or array.
type Value struct {
	Kind   ValueKind
	Num    float64
	Str    string
	JSON   interface{}
	Vendor string
	Args   []string
}

func (v Value) String() string {
	switch v.Kind {
	case ValNum:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case ValStr, ValIdent:
		return v.Str
	case ValVendor:
		return v.Vendor + ":" + strings.Join(v.Args, ",")
	default:
		return fmt.Sprintf("%v", v.JSON)
	}
}

// InstrumentFromArgs builds and validates an instrument from the parsed
// argument map of an `inst` declaration.
func InstrumentFromArgs(name string, args map[string]Value) (*Instrument, error) {
	in := &Instrument{
		Name: name,
		Env:  Envelope{Initial: 15, Direction: EnvDown, Period: 0},
	}

	for key, v := range args {
		var err error
		switch key {
		case "type":
			in.Type = v.String()
		case "duty":
			in.Duty, err = valueNum(v)
		case "env":
			in.Env, err = envelopeFromValue(v)
		case "sweep":
			var sw Sweep
			sw, err = sweepFromValue(v)
			if err == nil {
				in.Sweep = &sw
			}
		case "wave":
			var table []int
			table, err = waveFromValue(v)
			if err == nil {
				in.Wave = NormalizeWave(table)
			}
		case "width":
			var w float64
			w, err = valueNum(v)
			ensureNoise(in).Width = int(w)
		case "divisor":
			var d float64
			d, err = valueNum(v)
			ensureNoise(in).Divisor = int(d)
		case "shift":
			var s float64
			s, err = valueNum(v)
			ensureNoise(in).Shift = int(s)
		case "noise":
			var n Noise
			n, err = noiseFromValue(v)
			if err == nil {
				in.Noise = &n
			}
		case "pan":
			var p Pan
			p, err = ParsePan(v.String())
			if err == nil {
				in.Pan = &p
			}
		case "note":
			in.DefaultNote = v.String()
		default:
			err = fmt.Errorf("unknown instrument key %q", key)
		}
		if err != nil {
			return nil, fmt.Errorf("inst %s: %w", name, err)
		}
	}

	applyTypeDefaults(in)

	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func applyTypeDefaults(in *Instrument) {
	switch in.Type {
	case TypePulse1, TypePulse2:
		if in.Duty == 0 {
			in.Duty = 50
		}
	case TypeWave:
		if in.Wave == nil {
			// Default to a triangle-ish ramp when no table was given.
			table := make([]int, waveTableLen)
			for i := range table {
				if i < 8 {
					table[i] = i * 2
				} else {
					table[i] = (15 - i) * 2
				}
			}
			in.Wave = NormalizeWave(table)
		}
	case TypeNoise:
		n := ensureNoise(in)
		if n.Width == 0 {
			n.Width = 15
		}
		if n.Divisor == 0 {
			n.Divisor = 8
		}
	}
}

func ensureNoise(in *Instrument) *Noise {
	if in.Noise == nil {
		in.Noise = &Noise{}
	}
	return in.Noise
}

func valueNum(v Value) (float64, error) {
	if v.Kind == ValNum {
		return v.Num, nil
	}
	f, err := strconv.ParseFloat(v.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", v.String())
	}
	return f, nil
}

// envelopeFromValue accepts the Game Boy vendor form `gb:initial,dir,period`,
// a JSON object {initial,direction,period}, or a legacy ADSR object
// {attack,decay,sustain,release}.
func envelopeFromValue(v Value) (Envelope, error) {
	switch v.Kind {
	case ValVendor:
		if v.Vendor != "gb" {
			return Envelope{}, fmt.Errorf("unknown envelope vendor %q", v.Vendor)
		}
		if len(v.Args) != 3 {
			return Envelope{}, fmt.Errorf("gb envelope needs initial,direction,period, got %q", strings.Join(v.Args, ","))
		}
		initial, err := strconv.Atoi(v.Args[0])
		if err != nil {
			return Envelope{}, fmt.Errorf("gb envelope initial: %w", err)
		}
		dir, err := parseDirection(v.Args[1])
		if err != nil {
			return Envelope{}, err
		}
		period, err := strconv.Atoi(v.Args[2])
		if err != nil {
			return Envelope{}, fmt.Errorf("gb envelope period: %w", err)
		}
		return Envelope{Initial: initial, Direction: dir, Period: period}, nil

	case ValJSON:
		obj, ok := v.JSON.(map[string]interface{})
		if !ok {
			return Envelope{}, fmt.Errorf("envelope must be an object")
		}
		if _, isADSR := obj["attack"]; isADSR {
			adsr := ADSR{Sustain: 1}
			adsr.Attack = jsonNum(obj, "attack", adsr.Attack)
			adsr.Decay = jsonNum(obj, "decay", adsr.Decay)
			adsr.Sustain = jsonNum(obj, "sustain", adsr.Sustain)
			adsr.Release = jsonNum(obj, "release", adsr.Release)
			return Envelope{Initial: 15, Direction: EnvDown, Period: 0, Legacy: &adsr}, nil
		}
		env := Envelope{Initial: 15, Direction: EnvDown}
		env.Initial = int(jsonNum(obj, "initial", float64(env.Initial)))
		env.Period = int(jsonNum(obj, "period", float64(env.Period)))
		if d, ok := obj["direction"].(string); ok {
			dir, err := parseDirection(d)
			if err != nil {
				return Envelope{}, err
			}
			env.Direction = dir
		}
		return env, nil

	default:
		return Envelope{}, fmt.Errorf("invalid envelope value %q", v.String())
	}
}

func sweepFromValue(v Value) (Sweep, error) {
	switch v.Kind {
	case ValVendor:
		if v.Vendor != "gb" || len(v.Args) != 3 {
			return Sweep{}, fmt.Errorf("sweep must be gb:time,direction,shift")
		}
		t, err := strconv.Atoi(v.Args[0])
		if err != nil {
			return Sweep{}, fmt.Errorf("sweep time: %w", err)
		}
		dir, err := parseDirection(v.Args[1])
		if err != nil {
			return Sweep{}, err
		}
		sh, err := strconv.Atoi(v.Args[2])
		if err != nil {
			return Sweep{}, fmt.Errorf("sweep shift: %w", err)
		}
		return Sweep{Time: t, Direction: dir, Shift: sh}, nil

	case ValJSON:
		obj, ok := v.JSON.(map[string]interface{})
		if !ok {
			return Sweep{}, fmt.Errorf("sweep must be an object")
		}
		sw := Sweep{Direction: EnvDown}
		sw.Time = int(jsonNum(obj, "time", 0))
		sw.Shift = int(jsonNum(obj, "shift", 0))
		if d, ok := obj["direction"].(string); ok {
			dir, err := parseDirection(d)
			if err != nil {
				return Sweep{}, err
			}
			sw.Direction = dir
		}
		return sw, nil

	default:
		return Sweep{}, fmt.Errorf("invalid sweep value %q", v.String())
	}
}

func noiseFromValue(v Value) (Noise, error) {
	obj, ok := v.JSON.(map[string]interface{})
	if v.Kind != ValJSON || !ok {
		return Noise{}, fmt.Errorf("noise must be an object")
	}
	n := Noise{Width: 15, Divisor: 8}
	n.Width = int(jsonNum(obj, "width", float64(n.Width)))
	n.Divisor = int(jsonNum(obj, "divisor", float64(n.Divisor)))
	n.Shift = int(jsonNum(obj, "shift", float64(n.Shift)))
	return n, nil
}

func waveFromValue(v Value) ([]int, error) {
	if v.Kind != ValJSON {
		return nil, fmt.Errorf("wave must be an array of nibbles")
	}
	arr, ok := v.JSON.([]interface{})
	if !ok {
		return nil, fmt.Errorf("wave must be an array of nibbles")
	}
	table := make([]int, 0, len(arr))
	for i, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return nil, fmt.Errorf("wave[%d] is not a number", i)
		}
		table = append(table, int(f))
	}
	return table, nil
}

func parseDirection(s string) (EnvDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return EnvUp, nil
	case "down":
		return EnvDown, nil
	}
	return "", fmt.Errorf("direction must be up or down, got %q", s)
}

func jsonNum(obj map[string]interface{}, key string, def float64) float64 {
	if f, ok := obj[key].(float64); ok {
		return f
	}
	return def
}
