package postgres

import "github.com/go-faster/jx"

// Array-valued rule columns are stored as JSON array text. jx handles the
// round-trip without intermediate allocations.

func encodeStringArray(values []string) string {
	var e jx.Encoder
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
	return string(e.Bytes())
}

func encodeIntArray(values []int) string {
	var e jx.Encoder
	e.ArrStart()
	for _, v := range values {
		e.Int(v)
	}
	e.ArrEnd()
	return string(e.Bytes())
}

func decodeStringArray(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []string
	d := jx.DecodeStr(s)
	err := d.Arr(func(d *jx.Decoder) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func decodeIntArray(s string) ([]int, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []int
	d := jx.DecodeStr(s)
	err := d.Arr(func(d *jx.Decoder) error {
		v, err := d.Int()
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}
