package classifier

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

// Weight files are protobuf wire data shaped like
//
//	message WeightFile { string format = 1; repeated WeightTensor tensors = 2; }
//	message WeightTensor { string name = 1; repeated int64 shape = 2; repeated double data = 3; }
const (
	weightFormat = "sonoscan.resnet18.v1"

	fileFormatField  protowire.Number = 1
	fileTensorsField protowire.Number = 2

	tensorNameField  protowire.Number = 1
	tensorShapeField protowire.Number = 2
	tensorDataField  protowire.Number = 3
)

// WeightTensor is one record of a weight file.
type WeightTensor struct {
	Name  string
	Shape []int
	Data  []float64
}

// EncodeWeights serialises tensors into the weight-file wire format.
func EncodeWeights(tensors []WeightTensor) []byte {
	var b []byte
	b = protowire.AppendTag(b, fileFormatField, protowire.BytesType)
	b = protowire.AppendString(b, weightFormat)

	for _, wt := range tensors {
		var rec []byte
		rec = protowire.AppendTag(rec, tensorNameField, protowire.BytesType)
		rec = protowire.AppendString(rec, wt.Name)

		var shape []byte
		for _, d := range wt.Shape {
			shape = protowire.AppendVarint(shape, uint64(d))
		}
		rec = protowire.AppendTag(rec, tensorShapeField, protowire.BytesType)
		rec = protowire.AppendBytes(rec, shape)

		data := make([]byte, 0, 8*len(wt.Data))
		for _, v := range wt.Data {
			data = protowire.AppendFixed64(data, math.Float64bits(v))
		}
		rec = protowire.AppendTag(rec, tensorDataField, protowire.BytesType)
		rec = protowire.AppendBytes(rec, data)

		b = protowire.AppendTag(b, fileTensorsField, protowire.BytesType)
		b = protowire.AppendBytes(b, rec)
	}
	return b
}

// DecodeWeights parses a weight file. Unknown fields are skipped.
func DecodeWeights(b []byte) ([]WeightTensor, error) {
	var (
		out    []WeightTensor
		format string
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fileFormatField && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			format = s
			b = b[n:]
		case num == fileTensorsField && typ == protowire.BytesType:
			rec, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			wt, err := decodeTensor(rec)
			if err != nil {
				return nil, err
			}
			out = append(out, wt)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if format != weightFormat {
		return nil, fmt.Errorf("unsupported weight format %q", format)
	}
	return out, nil
}

func decodeTensor(b []byte) (WeightTensor, error) {
	var wt WeightTensor
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wt, protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return wt, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return wt, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case tensorNameField:
			wt.Name = string(v)
		case tensorShapeField:
			for len(v) > 0 {
				d, k := protowire.ConsumeVarint(v)
				if k < 0 {
					return wt, protowire.ParseError(k)
				}
				wt.Shape = append(wt.Shape, int(d))
				v = v[k:]
			}
		case tensorDataField:
			if len(v)%8 != 0 {
				return wt, fmt.Errorf("tensor %q data is not a multiple of 8 bytes", wt.Name)
			}
			wt.Data = make([]float64, 0, len(v)/8)
			for len(v) > 0 {
				bits, k := protowire.ConsumeFixed64(v)
				if k < 0 {
					return wt, protowire.ParseError(k)
				}
				wt.Data = append(wt.Data, math.Float64frombits(bits))
				v = v[k:]
			}
		}
	}
	return wt, nil
}

// StateDict returns copies of every parameter and buffer as weight records.
func (m *Model) StateDict() []WeightTensor {
	out := make([]WeightTensor, 0, len(m.params))
	for _, p := range m.params {
		out = append(out, WeightTensor{
			Name:  p.Name,
			Shape: slices.Clone(p.Value.Shape),
			Data:  slices.Clone(p.Value.Data),
		})
	}
	return out
}

// LoadOptions relaxes LoadStateDict for warm starts from another head.
type LoadOptions struct {
	// SkipPrefixes ignores records whose name starts with any of these prefixes.
	SkipPrefixes []string
}

// LoadStateDict copies records into the model. A shape mismatch or an unknown
// parameter name is a configuration error.
func (m *Model) LoadStateDict(records []WeightTensor, opts LoadOptions) error {
	loaded := make(map[string]*tensor.Tensor, len(records))
	for _, rec := range records {
		if slices.ContainsFunc(opts.SkipPrefixes, func(p string) bool { return strings.HasPrefix(rec.Name, p) }) {
			continue
		}
		p, ok := m.byName[rec.Name]
		if !ok {
			return errors.Newf("unknown parameter %q in weight file", rec.Name).
				Component("classifier").
				Category(errors.CategoryConfiguration).
				Build()
		}
		if !slices.Equal(p.Value.Shape, rec.Shape) {
			return errors.Newf("parameter %s has shape %v, weight file has %v", rec.Name, p.Value.Shape, rec.Shape).
				Component("classifier").
				Category(errors.CategoryConfiguration).
				Context("parameter", rec.Name).
				Build()
		}
		t, err := tensor.FromSlice(slices.Clone(rec.Data), rec.Shape...)
		if err != nil {
			return errors.New(err).
				Component("classifier").
				Category(errors.CategoryConfiguration).
				Context("parameter", rec.Name).
				Build()
		}
		loaded[rec.Name] = t
	}

	// Commit only after every record validated.
	for name, t := range loaded {
		m.byName[name].Value.Data = t.Data
	}
	return nil
}

// LoadWeights reads a weight file into the model. A missing file is a soft failure:
// it logs a warning, leaves the weights as initialised and returns false.
func (m *Model) LoadWeights(path string, opts LoadOptions) (bool, error) {
	log := logger.Global().Module("classifier")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("weight file not found, using initialised weights", logger.String("path", path))
			return false, nil
		}
		return false, errors.New(err).
			Component("classifier").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	records, err := DecodeWeights(data)
	if err != nil {
		return false, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("path", path).
			Build()
	}
	if err := m.LoadStateDict(records, opts); err != nil {
		return false, err
	}

	log.Info("weights loaded", logger.String("path", path), logger.Int("tensors", len(records)))
	return true, nil
}

// SaveWeights writes the state dict atomically through a temp file and a rename.
func (m *Model) SaveWeights(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryFileIO).Context("path", path).Build()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".weights-*")
	if err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(EncodeWeights(m.StateDict())); err != nil {
		tmp.Close()
		return errors.New(err).Component("classifier").Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	if err := tmp.Close(); err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	return nil
}
