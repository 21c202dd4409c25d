package codegen

import "github.com/pyxlang/pyx/pkg/ir"

type externSig struct {
	params   []ir.Type
	ret      ir.Type
	variadic bool
}

// runtimeExterns are the runtime library routines programs may declare but
// never define. An extern whose name matches one of these is checked
// against the real signature instead of the default all-f64 shape.
var runtimeExterns = map[string]externSig{
	"allocmem": {params: []ir.Type{ir.F64}, ret: ir.F64},
	"freemem":  {params: []ir.Type{ir.F64}, ret: ir.Void},
	"putchard": {params: []ir.Type{ir.F64}, ret: ir.F64},
	"printd":   {params: []ir.Type{ir.F64}, ret: ir.F64},
	"printfd":  {params: []ir.Type{ir.Str}, ret: ir.F64, variadic: true},
	"fopend":   {params: []ir.Type{ir.Str, ir.Str}, ret: ir.F64},
	"fclosed":  {params: []ir.Type{ir.F64}, ret: ir.F64},
	"freadd":   {params: []ir.Type{ir.F64, ir.F64}, ret: ir.F64},
	"fwrited":  {params: []ir.Type{ir.F64, ir.F64}, ret: ir.F64},
}
