package utils

import (
	"fmt"
	"sort"

	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"
)

// SaveNpz writes the arrays into a .npz archive of float64 entries, sorted by
// name. Arrays of more than 2 dimensions are flattened to (shape[0], rest).
func SaveNpz(fname string, arrays map[string]Array) error {
	names := make([]string, 0, len(arrays))
	for name, a := range arrays {
		if len(a.Shape) == 0 || a.Size() == 0 || a.Size() != len(a.Data) {
			return fmt.Errorf("npz: %s has %d values for shape %v", name, len(a.Data), a.Shape)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	w, err := npz.Create(fname)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, name := range names {
		a := arrays[name]
		var v interface{} = a.Data
		if len(a.Shape) > 1 {
			v = mat.NewDense(a.Shape[0], len(a.Data)/a.Shape[0], a.Data)
		}
		if err := w.Write(name+".npy", v); err != nil {
			return err
		}
	}
	return w.Close()
}
