// Package meta reads the identity, version and index annotations of
// read-model structs. Results are cached per type.
package meta

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

const tagName = "procview"

type StructMeta struct {
	IDIndex      int
	VersionIndex int
	Indexes      []IndexMeta
}

type IndexType int

const (
	IndexBtree IndexType = iota
	IndexGIN
)

type IndexMeta struct {
	FieldJSONKey string
	Type         IndexType
}

var cache sync.Map

func Analyze[T any]() *StructMeta {
	return AnalyzeType(reflect.TypeOf((*T)(nil)).Elem())
}

func AnalyzeType(t reflect.Type) *StructMeta {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := cache.Load(t); ok {
		return cached.(*StructMeta)
	}
	m := analyze(t)
	actual, _ := cache.LoadOrStore(t, m)
	return actual.(*StructMeta)
}

func analyze(t reflect.Type) *StructMeta {
	m := &StructMeta{IDIndex: -1, VersionIndex: -1}
	hasGIN := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		switch f.Tag.Get(tagName) {
		case "id":
			m.IDIndex = i
		case "version":
			m.VersionIndex = i
		case "index":
			m.Indexes = append(m.Indexes, IndexMeta{FieldJSONKey: jsonKey(f), Type: IndexBtree})
		case "index,gin":
			if !hasGIN {
				m.Indexes = append(m.Indexes, IndexMeta{Type: IndexGIN})
				hasGIN = true
			}
		}
	}
	if m.IDIndex == -1 {
		if f, ok := t.FieldByName("ID"); ok && len(f.Index) == 1 {
			m.IDIndex = f.Index[0]
		}
	}
	if m.VersionIndex == -1 {
		if f, ok := t.FieldByName("Version"); ok && len(f.Index) == 1 && f.Type.Kind() == reflect.Int {
			m.VersionIndex = f.Index[0]
		}
	}
	return m
}

func jsonKey(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

func analyzeValue(doc any) (reflect.Value, *StructMeta) {
	v := reflect.ValueOf(doc)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v, AnalyzeType(v.Type())
}

func ExtractID(doc any) (string, error) {
	v, m := analyzeValue(doc)
	if m.IDIndex == -1 {
		return "", fmt.Errorf("meta: no ID field in %s", v.Type().Name())
	}
	id := fmt.Sprint(v.Field(m.IDIndex).Interface())
	if id == "" {
		return "", fmt.Errorf("meta: empty ID in %s", v.Type().Name())
	}
	return id, nil
}

func ExtractVersion(doc any) (int, bool) {
	v, m := analyzeValue(doc)
	if m.VersionIndex == -1 {
		return 0, false
	}
	return int(v.Field(m.VersionIndex).Int()), true
}

func SetVersion(doc any, version int) {
	v, m := analyzeValue(doc)
	if m.VersionIndex == -1 {
		return
	}
	v.Field(m.VersionIndex).SetInt(int64(version))
}
