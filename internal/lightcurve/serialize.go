package lightcurve

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/klauspost/compress/zstd"
)

// Saved collections are a small container: a 4-byte magic followed by a
// zstd stream holding two length-prefixed Arrow IPC payloads, one with a
// record batch per lightcurve body and one with the metadata record. Arrow
// preserves native numeric kinds, so the round trip is bit-exact.
var fileMagic = [4]byte{'S', 'L', 'C', '1'}

func bodySchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "time", Type: arrow.PrimitiveTypes.Float64},
		{Name: "band", Type: arrow.BinaryTypes.String},
		{Name: "skynoise", Type: arrow.PrimitiveTypes.Float64},
		{Name: "gain", Type: arrow.PrimitiveTypes.Float64},
		{Name: "zp", Type: arrow.PrimitiveTypes.Float64},
		{Name: "zpsys", Type: arrow.BinaryTypes.String},
		{Name: "flux", Type: arrow.PrimitiveTypes.Float64},
		{Name: "fluxerr", Type: arrow.PrimitiveTypes.Float64},
		// Row i holds covariance row i (length = epoch count); null when
		// the body carries no covariance.
		{Name: "fluxcov", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64), Nullable: true},
	}, nil)
}

// Save serializes the whole collection to path.
func (c *Collection) Save(path string) error {
	bodiesBuf, err := c.encodeBodies()
	if err != nil {
		return fmt.Errorf("encode bodies: %w", err)
	}
	metaBuf, err := c.encodeMeta()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(fileMagic[:]); err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	for _, payload := range [][]byte{bodiesBuf, metaBuf} {
		if err := binary.Write(zw, binary.LittleEndian, uint64(len(payload))); err != nil {
			zw.Close()
			return err
		}
		if _, err := zw.Write(payload); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

// Load reads a collection previously written by Save.
func Load(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("%s is not a lightcurve collection file", path)
	}

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	bodiesBuf, err := readPayload(zr)
	if err != nil {
		return nil, fmt.Errorf("read bodies payload: %w", err)
	}
	metaBuf, err := readPayload(zr)
	if err != nil {
		return nil, fmt.Errorf("read metadata payload: %w", err)
	}

	c := NewCollection()
	if err := c.decodeBodies(bodiesBuf); err != nil {
		return nil, fmt.Errorf("decode bodies: %w", err)
	}
	if err := c.decodeMeta(metaBuf); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(c.meta) != len(c.bodies) {
		return nil, fmt.Errorf("corrupt collection: %d bodies but %d metadata records",
			len(c.bodies), len(c.meta))
	}
	return c, nil
}

func readPayload(r io.Reader) ([]byte, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Collection) encodeBodies() ([]byte, error) {
	if len(c.bodies) == 0 {
		return nil, nil
	}

	mem := memory.NewGoAllocator()
	schema := bodySchema()
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	for bi := range c.bodies {
		b := &c.bodies[bi]
		timeB := builder.Field(0).(*array.Float64Builder)
		bandB := builder.Field(1).(*array.StringBuilder)
		skyB := builder.Field(2).(*array.Float64Builder)
		gainB := builder.Field(3).(*array.Float64Builder)
		zpB := builder.Field(4).(*array.Float64Builder)
		zpsysB := builder.Field(5).(*array.StringBuilder)
		fluxB := builder.Field(6).(*array.Float64Builder)
		fluxerrB := builder.Field(7).(*array.Float64Builder)
		covB := builder.Field(8).(*array.ListBuilder)
		covValB := covB.ValueBuilder().(*array.Float64Builder)

		timeB.AppendValues(b.Time, nil)
		bandB.AppendValues(b.Band, nil)
		skyB.AppendValues(b.Skynoise, nil)
		gainB.AppendValues(b.Gain, nil)
		zpB.AppendValues(b.ZP, nil)
		zpsysB.AppendValues(b.ZPSys, nil)
		fluxB.AppendValues(b.Flux, nil)
		fluxerrB.AppendValues(b.Fluxerr, nil)
		for i := 0; i < b.Len(); i++ {
			if b.FluxCov == nil {
				covB.AppendNull()
				continue
			}
			covB.Append(true)
			covValB.AppendValues(b.FluxCov[i], nil)
		}

		rec := builder.NewRecord()
		err := w.Write(rec)
		rec.Release()
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("lightcurve %d: %w", bi, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Collection) decodeBodies(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	r, err := ipc.NewReader(bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer r.Release()

	for r.Next() {
		rec := r.Record()
		n := int(rec.NumRows())

		body := Body{
			Time:     append([]float64(nil), rec.Column(0).(*array.Float64).Float64Values()...),
			Band:     stringColumn(rec.Column(1).(*array.String), n),
			Skynoise: append([]float64(nil), rec.Column(2).(*array.Float64).Float64Values()...),
			Gain:     append([]float64(nil), rec.Column(3).(*array.Float64).Float64Values()...),
			ZP:       append([]float64(nil), rec.Column(4).(*array.Float64).Float64Values()...),
			ZPSys:    stringColumn(rec.Column(5).(*array.String), n),
			Flux:     append([]float64(nil), rec.Column(6).(*array.Float64).Float64Values()...),
			Fluxerr:  append([]float64(nil), rec.Column(7).(*array.Float64).Float64Values()...),
		}

		covList := rec.Column(8).(*array.List)
		if n > 0 && covList.IsValid(0) {
			vals := covList.ListValues().(*array.Float64)
			offsets := covList.Offsets()
			body.FluxCov = make([][]float64, n)
			for i := 0; i < n; i++ {
				lo, hi := offsets[i], offsets[i+1]
				body.FluxCov[i] = append([]float64(nil), vals.Float64Values()[lo:hi]...)
			}
		}

		c.bodies = append(c.bodies, body)
	}
	return r.Err()
}

func stringColumn(col *array.String, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = col.Value(i)
	}
	return out
}

func (c *Collection) encodeMeta() ([]byte, error) {
	if c.schema == nil {
		return nil, nil
	}

	fields := make([]arrow.Field, len(c.schema))
	for i, f := range c.schema {
		var typ arrow.DataType
		switch f.kind {
		case kindFloat:
			typ = arrow.PrimitiveTypes.Float64
		case kindInt:
			typ = arrow.PrimitiveTypes.Int64
		case kindString:
			typ = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: f.name, Type: typ}
	}
	schema := arrow.NewSchema(fields, nil)

	mem := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	for _, row := range c.meta {
		for fi, f := range c.schema {
			switch f.kind {
			case kindFloat:
				builder.Field(fi).(*array.Float64Builder).Append(row[fi].(float64))
			case kindInt:
				builder.Field(fi).(*array.Int64Builder).Append(row[fi].(int64))
			case kindString:
				builder.Field(fi).(*array.StringBuilder).Append(row[fi].(string))
			}
		}
	}

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	rec := builder.NewRecord()
	err := w.Write(rec)
	rec.Release()
	if err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Collection) decodeMeta(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	r, err := ipc.NewReader(bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer r.Release()

	schema := make([]metaField, 0, len(r.Schema().Fields()))
	for _, f := range r.Schema().Fields() {
		var kind metaKind
		switch f.Type.ID() {
		case arrow.FLOAT64:
			kind = kindFloat
		case arrow.INT64:
			kind = kindInt
		case arrow.STRING:
			kind = kindString
		default:
			return fmt.Errorf("unsupported metadata column type %s for %q", f.Type, f.Name)
		}
		schema = append(schema, metaField{name: f.Name, kind: kind})
	}
	c.schema = schema

	for r.Next() {
		rec := r.Record()
		n := int(rec.NumRows())
		for i := 0; i < n; i++ {
			row := make([]any, len(schema))
			for fi, f := range schema {
				switch f.kind {
				case kindFloat:
					row[fi] = rec.Column(fi).(*array.Float64).Value(i)
				case kindInt:
					row[fi] = rec.Column(fi).(*array.Int64).Value(i)
				case kindString:
					row[fi] = rec.Column(fi).(*array.String).Value(i)
				}
			}
			c.meta = append(c.meta, row)
		}
	}
	return r.Err()
}
