// Package bench compares the interpreter against other runtimes on a
// factorial workload. The module is assembled in code because the fixture is
// tiny: it exports fac-iter(i64)->i64 computing an iterative factorial.
package bench

// facWasm is the binary encoding of:
//
//	(module
//	  (func (export "fac-iter") (param i64) (result i64)
//	    (local i64)
//	    i64.const 1
//	    local.set 1
//	    block
//	      loop
//	        local.get 0
//	        i64.eqz
//	        br_if 1
//	        local.get 1
//	        local.get 0
//	        i64.mul
//	        local.set 1
//	        local.get 0
//	        i64.const 1
//	        i64.sub
//	        local.set 0
//	        br 0
//	      end
//	    end
//	    local.get 1))
var facWasm = []byte{
	// preamble
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: (i64) -> i64
	0x01, 0x06, 0x01, 0x60, 0x01, 0x7e, 0x01, 0x7e,
	// function section
	0x03, 0x02, 0x01, 0x00,
	// export section: "fac-iter" -> func 0
	0x07, 0x0c, 0x01, 0x08, 'f', 'a', 'c', '-', 'i', 't', 'e', 'r', 0x00, 0x00,
	// code section
	0x0a, 0x27, 0x01,
	0x25,       // body size
	0x01, 0x01, 0x7e, // one local group: 1 x i64
	0x42, 0x01, // i64.const 1
	0x21, 0x01, // local.set 1
	0x02, 0x40, // block
	0x03, 0x40, // loop
	0x20, 0x00, // local.get 0
	0x50,       // i64.eqz
	0x0d, 0x01, // br_if 1
	0x20, 0x01, // local.get 1
	0x20, 0x00, // local.get 0
	0x7e,       // i64.mul
	0x21, 0x01, // local.set 1
	0x20, 0x00, // local.get 0
	0x42, 0x01, // i64.const 1
	0x7d,       // i64.sub
	0x21, 0x00, // local.set 0
	0x0c, 0x00, // br 0
	0x0b,       // end (loop)
	0x0b,       // end (block)
	0x20, 0x01, // local.get 1
	0x0b, // end (function)
}
