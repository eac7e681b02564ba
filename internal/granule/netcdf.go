package granule

import (
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// netcdfSource adapts a NetCDF4/HDF5 granule opened through
// go-native-netcdf to the Source interface.
type netcdfSource struct {
	root   api.Group
	stream api.ReadSeekerCloser
}

// OpenNetCDF opens a granule byte stream as a hierarchical NetCDF source.
func OpenNetCDF(stream api.ReadSeekerCloser) (Source, error) {
	root, err := netcdf.New(stream)
	if err != nil {
		return nil, fmt.Errorf("opening granule stream: %w", err)
	}
	return &netcdfSource{root: root, stream: stream}, nil
}

func (s *netcdfSource) Group(name string) (Group, error) {
	g, err := s.root.GetGroup(name)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", name, err)
	}
	return &netcdfGroup{group: g, root: s.root}, nil
}

func (s *netcdfSource) Close() error {
	s.root.Close()
	if s.stream != nil {
		// The reader may already be closed by the group; a second close
		// error carries no information.
		s.stream.Close()
	}
	return nil
}

// netcdfGroup reads variables out of one granule sub-structure. Attribute
// lookups fall back to the root group, where granule-level metadata such
// as time_coverage_start usually lives.
type netcdfGroup struct {
	group api.Group
	root  api.Group
}

func (g *netcdfGroup) Floats(name string) (*Array, error) {
	v, err := g.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	data, shape, err := flattenFloats(v.Values)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return &Array{Data: data, Shape: shape}, nil
}

func (g *netcdfGroup) Ints(name string) (*IntArray, error) {
	v, err := g.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	data, shape, err := flattenInts(v.Values)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return &IntArray{Data: data, Shape: shape}, nil
}

func (g *netcdfGroup) Attr(name string) (string, bool) {
	for _, attrs := range []api.AttributeMap{g.group.Attributes(), g.root.Attributes()} {
		if attrs == nil {
			continue
		}
		if val, ok := attrs.Get(name); ok {
			switch s := val.(type) {
			case string:
				return s, true
			case []string:
				if len(s) > 0 {
					return s[0], true
				}
			default:
				return fmt.Sprintf("%v", val), true
			}
		}
	}
	return "", false
}

// flattenFloats converts arbitrarily nested numeric slices, as returned by
// go-native-netcdf, into flat row-major float64 data plus a shape.
func flattenFloats(values interface{}) ([]float64, []int, error) {
	shape, err := sliceShape(values)
	if err != nil {
		return nil, nil, err
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float64, 0, n)
	if err := walkNumeric(reflect.ValueOf(values), len(shape), func(v reflect.Value) error {
		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			data = append(data, v.Float())
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
			data = append(data, float64(v.Int()))
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			data = append(data, float64(v.Uint()))
		default:
			return fmt.Errorf("unsupported element type %s", v.Kind())
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

func flattenInts(values interface{}) ([]int64, []int, error) {
	shape, err := sliceShape(values)
	if err != nil {
		return nil, nil, err
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]int64, 0, n)
	if err := walkNumeric(reflect.ValueOf(values), len(shape), func(v reflect.Value) error {
		switch v.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
			data = append(data, v.Int())
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			data = append(data, int64(v.Uint()))
		default:
			return fmt.Errorf("unsupported integer element type %s", v.Kind())
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

// sliceShape derives the dimensions of a nested slice value. Ragged inner
// slices are not detected here; the extractor's shape checks catch them
// downstream.
func sliceShape(values interface{}) ([]int, error) {
	var shape []int
	v := reflect.ValueOf(values)
	for v.Kind() == reflect.Slice {
		shape = append(shape, v.Len())
		if v.Len() == 0 {
			break
		}
		v = v.Index(0)
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("scalar value where array expected")
	}
	return shape, nil
}

// walkNumeric visits every leaf element of a nested slice in row-major
// order.
func walkNumeric(v reflect.Value, depth int, visit func(reflect.Value) error) error {
	if depth == 0 {
		return visit(v)
	}
	if v.Kind() != reflect.Slice {
		return fmt.Errorf("ragged array: expected slice at depth %d", depth)
	}
	for i := 0; i < v.Len(); i++ {
		if err := walkNumeric(v.Index(i), depth-1, visit); err != nil {
			return err
		}
	}
	return nil
}
