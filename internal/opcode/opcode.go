// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package opcode defines the instruction set of the stack virtual machine:
// opcode values, operand encodings and the static classification tables the
// analysis and rewrite passes query.
//
// The table is a constant array keyed by opcode value. Nothing is discovered
// at runtime.
package opcode

import "fmt"

// OpCode is a single instruction byte.
type OpCode byte

// =============================================================================
// Constants
// =============================================================================

// Push.
const (
	PUSHINT8   OpCode = 0x00
	PUSHINT16  OpCode = 0x01
	PUSHINT32  OpCode = 0x02
	PUSHINT64  OpCode = 0x03
	PUSHINT128 OpCode = 0x04
	PUSHINT256 OpCode = 0x05
	PUSHT      OpCode = 0x08
	PUSHF      OpCode = 0x09
	PUSHA      OpCode = 0x0A
	PUSHNULL   OpCode = 0x0B
	PUSHDATA1  OpCode = 0x0C
	PUSHDATA2  OpCode = 0x0D
	PUSHDATA4  OpCode = 0x0E
	PUSHM1     OpCode = 0x0F
	PUSH0      OpCode = 0x10
	PUSH1      OpCode = 0x11
	PUSH2      OpCode = 0x12
	PUSH3      OpCode = 0x13
	PUSH4      OpCode = 0x14
	PUSH5      OpCode = 0x15
	PUSH6      OpCode = 0x16
	PUSH7      OpCode = 0x17
	PUSH8      OpCode = 0x18
	PUSH9      OpCode = 0x19
	PUSH10     OpCode = 0x1A
	PUSH11     OpCode = 0x1B
	PUSH12     OpCode = 0x1C
	PUSH13     OpCode = 0x1D
	PUSH14     OpCode = 0x1E
	PUSH15     OpCode = 0x1F
	PUSH16     OpCode = 0x20
)

// Flow control.
const (
	NOP        OpCode = 0x21
	JMP        OpCode = 0x22
	JMP_L      OpCode = 0x23
	JMPIF      OpCode = 0x24
	JMPIF_L    OpCode = 0x25
	JMPIFNOT   OpCode = 0x26
	JMPIFNOT_L OpCode = 0x27
	JMPEQ      OpCode = 0x28
	JMPEQ_L    OpCode = 0x29
	JMPNE      OpCode = 0x2A
	JMPNE_L    OpCode = 0x2B
	JMPGT      OpCode = 0x2C
	JMPGT_L    OpCode = 0x2D
	JMPGE      OpCode = 0x2E
	JMPGE_L    OpCode = 0x2F
	JMPLT      OpCode = 0x30
	JMPLT_L    OpCode = 0x31
	JMPLE      OpCode = 0x32
	JMPLE_L    OpCode = 0x33
	CALL       OpCode = 0x34
	CALL_L     OpCode = 0x35
	CALLA      OpCode = 0x36
	CALLT      OpCode = 0x37
	ABORT      OpCode = 0x38
	ASSERT     OpCode = 0x39
	THROW      OpCode = 0x3A
	TRY        OpCode = 0x3B
	TRY_L      OpCode = 0x3C
	ENDTRY     OpCode = 0x3D
	ENDTRY_L   OpCode = 0x3E
	ENDFINALLY OpCode = 0x3F
	RET        OpCode = 0x40
	SYSCALL    OpCode = 0x41
)

// Stack.
const (
	DEPTH    OpCode = 0x43
	DROP     OpCode = 0x45
	NIP      OpCode = 0x46
	XDROP    OpCode = 0x48
	CLEAR    OpCode = 0x49
	DUP      OpCode = 0x4A
	OVER     OpCode = 0x4B
	PICK     OpCode = 0x4D
	TUCK     OpCode = 0x4E
	SWAP     OpCode = 0x50
	ROT      OpCode = 0x51
	ROLL     OpCode = 0x52
	REVERSE3 OpCode = 0x53
	REVERSE4 OpCode = 0x54
	REVERSEN OpCode = 0x55
)

// Slots.
const (
	INITSSLOT OpCode = 0x56
	INITSLOT  OpCode = 0x57
	LDSFLD0   OpCode = 0x58
	LDSFLD1   OpCode = 0x59
	LDSFLD2   OpCode = 0x5A
	LDSFLD3   OpCode = 0x5B
	LDSFLD4   OpCode = 0x5C
	LDSFLD5   OpCode = 0x5D
	LDSFLD6   OpCode = 0x5E
	LDSFLD    OpCode = 0x5F
	STSFLD0   OpCode = 0x60
	STSFLD1   OpCode = 0x61
	STSFLD2   OpCode = 0x62
	STSFLD3   OpCode = 0x63
	STSFLD4   OpCode = 0x64
	STSFLD5   OpCode = 0x65
	STSFLD6   OpCode = 0x66
	STSFLD    OpCode = 0x67
	LDLOC0    OpCode = 0x68
	LDLOC1    OpCode = 0x69
	LDLOC2    OpCode = 0x6A
	LDLOC3    OpCode = 0x6B
	LDLOC4    OpCode = 0x6C
	LDLOC5    OpCode = 0x6D
	LDLOC6    OpCode = 0x6E
	LDLOC     OpCode = 0x6F
	STLOC0    OpCode = 0x70
	STLOC1    OpCode = 0x71
	STLOC2    OpCode = 0x72
	STLOC3    OpCode = 0x73
	STLOC4    OpCode = 0x74
	STLOC5    OpCode = 0x75
	STLOC6    OpCode = 0x76
	STLOC     OpCode = 0x77
	LDARG0    OpCode = 0x78
	LDARG1    OpCode = 0x79
	LDARG2    OpCode = 0x7A
	LDARG3    OpCode = 0x7B
	LDARG4    OpCode = 0x7C
	LDARG5    OpCode = 0x7D
	LDARG6    OpCode = 0x7E
	LDARG     OpCode = 0x7F
	STARG0    OpCode = 0x80
	STARG1    OpCode = 0x81
	STARG2    OpCode = 0x82
	STARG3    OpCode = 0x83
	STARG4    OpCode = 0x84
	STARG5    OpCode = 0x85
	STARG6    OpCode = 0x86
	STARG     OpCode = 0x87
)

// Splice, bitwise and arithmetic.
const (
	NEWBUFFER   OpCode = 0x88
	MEMCPY      OpCode = 0x89
	CAT         OpCode = 0x8B
	SUBSTR      OpCode = 0x8C
	LEFT        OpCode = 0x8D
	RIGHT       OpCode = 0x8E
	INVERT      OpCode = 0x90
	AND         OpCode = 0x91
	OR          OpCode = 0x92
	XOR         OpCode = 0x93
	EQUAL       OpCode = 0x97
	NOTEQUAL    OpCode = 0x98
	SIGN        OpCode = 0x99
	ABS         OpCode = 0x9A
	NEGATE      OpCode = 0x9B
	INC         OpCode = 0x9C
	DEC         OpCode = 0x9D
	ADD         OpCode = 0x9E
	SUB         OpCode = 0x9F
	MUL         OpCode = 0xA0
	DIV         OpCode = 0xA1
	MOD         OpCode = 0xA2
	POW         OpCode = 0xA3
	SQRT        OpCode = 0xA4
	MODMUL      OpCode = 0xA5
	MODPOW      OpCode = 0xA6
	SHL         OpCode = 0xA8
	SHR         OpCode = 0xA9
	NOT         OpCode = 0xAA
	BOOLAND     OpCode = 0xAB
	BOOLOR      OpCode = 0xAC
	NZ          OpCode = 0xB1
	NUMEQUAL    OpCode = 0xB3
	NUMNOTEQUAL OpCode = 0xB4
	LT          OpCode = 0xB5
	LE          OpCode = 0xB6
	GT          OpCode = 0xB7
	GE          OpCode = 0xB8
	MIN         OpCode = 0xB9
	MAX         OpCode = 0xBA
	WITHIN      OpCode = 0xBB
)

// Compound types and type checks.
const (
	PACKMAP      OpCode = 0xBE
	PACKSTRUCT   OpCode = 0xBF
	PACK         OpCode = 0xC0
	UNPACK       OpCode = 0xC1
	NEWARRAY0    OpCode = 0xC2
	NEWARRAY     OpCode = 0xC3
	NEWARRAY_T   OpCode = 0xC4
	NEWSTRUCT0   OpCode = 0xC5
	NEWSTRUCT    OpCode = 0xC6
	NEWMAP       OpCode = 0xC8
	SIZE         OpCode = 0xCA
	HASKEY       OpCode = 0xCB
	KEYS         OpCode = 0xCC
	VALUES       OpCode = 0xCD
	PICKITEM     OpCode = 0xCE
	APPEND       OpCode = 0xCF
	SETITEM      OpCode = 0xD0
	REVERSEITEMS OpCode = 0xD1
	REMOVE       OpCode = 0xD2
	CLEARITEMS   OpCode = 0xD3
	POPITEM      OpCode = 0xD4
	ISNULL       OpCode = 0xD8
	ISTYPE       OpCode = 0xD9
	CONVERT      OpCode = 0xDB
	ABORTMSG     OpCode = 0xE0
	ASSERTMSG    OpCode = 0xE1
)

// =============================================================================
// Operand table
// =============================================================================

type info struct {
	name string
	// size is the fixed operand width in bytes.
	size int
	// prefix is the width of the little-endian length prefix for
	// variable-length operands (PUSHDATA1/2/4). Zero when fixed.
	prefix int
	valid  bool
}

func op(name string, size int) info     { return info{name: name, size: size, valid: true} }
func data(name string, prefix int) info { return info{name: name, prefix: prefix, valid: true} }

var table = [256]info{
	PUSHINT8: op("PUSHINT8", 1), PUSHINT16: op("PUSHINT16", 2), PUSHINT32: op("PUSHINT32", 4),
	PUSHINT64: op("PUSHINT64", 8), PUSHINT128: op("PUSHINT128", 16), PUSHINT256: op("PUSHINT256", 32),
	PUSHT: op("PUSHT", 0), PUSHF: op("PUSHF", 0), PUSHA: op("PUSHA", 4), PUSHNULL: op("PUSHNULL", 0),
	PUSHDATA1: data("PUSHDATA1", 1), PUSHDATA2: data("PUSHDATA2", 2), PUSHDATA4: data("PUSHDATA4", 4),
	PUSHM1: op("PUSHM1", 0), PUSH0: op("PUSH0", 0), PUSH1: op("PUSH1", 0), PUSH2: op("PUSH2", 0),
	PUSH3: op("PUSH3", 0), PUSH4: op("PUSH4", 0), PUSH5: op("PUSH5", 0), PUSH6: op("PUSH6", 0),
	PUSH7: op("PUSH7", 0), PUSH8: op("PUSH8", 0), PUSH9: op("PUSH9", 0), PUSH10: op("PUSH10", 0),
	PUSH11: op("PUSH11", 0), PUSH12: op("PUSH12", 0), PUSH13: op("PUSH13", 0), PUSH14: op("PUSH14", 0),
	PUSH15: op("PUSH15", 0), PUSH16: op("PUSH16", 0),

	NOP: op("NOP", 0), JMP: op("JMP", 1), JMP_L: op("JMP_L", 4),
	JMPIF: op("JMPIF", 1), JMPIF_L: op("JMPIF_L", 4), JMPIFNOT: op("JMPIFNOT", 1), JMPIFNOT_L: op("JMPIFNOT_L", 4),
	JMPEQ: op("JMPEQ", 1), JMPEQ_L: op("JMPEQ_L", 4), JMPNE: op("JMPNE", 1), JMPNE_L: op("JMPNE_L", 4),
	JMPGT: op("JMPGT", 1), JMPGT_L: op("JMPGT_L", 4), JMPGE: op("JMPGE", 1), JMPGE_L: op("JMPGE_L", 4),
	JMPLT: op("JMPLT", 1), JMPLT_L: op("JMPLT_L", 4), JMPLE: op("JMPLE", 1), JMPLE_L: op("JMPLE_L", 4),
	CALL: op("CALL", 1), CALL_L: op("CALL_L", 4), CALLA: op("CALLA", 0), CALLT: op("CALLT", 2),
	ABORT: op("ABORT", 0), ASSERT: op("ASSERT", 0), THROW: op("THROW", 0),
	TRY: op("TRY", 2), TRY_L: op("TRY_L", 8), ENDTRY: op("ENDTRY", 1), ENDTRY_L: op("ENDTRY_L", 4),
	ENDFINALLY: op("ENDFINALLY", 0), RET: op("RET", 0), SYSCALL: op("SYSCALL", 4),

	DEPTH: op("DEPTH", 0), DROP: op("DROP", 0), NIP: op("NIP", 0), XDROP: op("XDROP", 0),
	CLEAR: op("CLEAR", 0), DUP: op("DUP", 0), OVER: op("OVER", 0), PICK: op("PICK", 0),
	TUCK: op("TUCK", 0), SWAP: op("SWAP", 0), ROT: op("ROT", 0), ROLL: op("ROLL", 0),
	REVERSE3: op("REVERSE3", 0), REVERSE4: op("REVERSE4", 0), REVERSEN: op("REVERSEN", 0),

	INITSSLOT: op("INITSSLOT", 1), INITSLOT: op("INITSLOT", 2),
	LDSFLD0: op("LDSFLD0", 0), LDSFLD1: op("LDSFLD1", 0), LDSFLD2: op("LDSFLD2", 0), LDSFLD3: op("LDSFLD3", 0),
	LDSFLD4: op("LDSFLD4", 0), LDSFLD5: op("LDSFLD5", 0), LDSFLD6: op("LDSFLD6", 0), LDSFLD: op("LDSFLD", 1),
	STSFLD0: op("STSFLD0", 0), STSFLD1: op("STSFLD1", 0), STSFLD2: op("STSFLD2", 0), STSFLD3: op("STSFLD3", 0),
	STSFLD4: op("STSFLD4", 0), STSFLD5: op("STSFLD5", 0), STSFLD6: op("STSFLD6", 0), STSFLD: op("STSFLD", 1),
	LDLOC0: op("LDLOC0", 0), LDLOC1: op("LDLOC1", 0), LDLOC2: op("LDLOC2", 0), LDLOC3: op("LDLOC3", 0),
	LDLOC4: op("LDLOC4", 0), LDLOC5: op("LDLOC5", 0), LDLOC6: op("LDLOC6", 0), LDLOC: op("LDLOC", 1),
	STLOC0: op("STLOC0", 0), STLOC1: op("STLOC1", 0), STLOC2: op("STLOC2", 0), STLOC3: op("STLOC3", 0),
	STLOC4: op("STLOC4", 0), STLOC5: op("STLOC5", 0), STLOC6: op("STLOC6", 0), STLOC: op("STLOC", 1),
	LDARG0: op("LDARG0", 0), LDARG1: op("LDARG1", 0), LDARG2: op("LDARG2", 0), LDARG3: op("LDARG3", 0),
	LDARG4: op("LDARG4", 0), LDARG5: op("LDARG5", 0), LDARG6: op("LDARG6", 0), LDARG: op("LDARG", 1),
	STARG0: op("STARG0", 0), STARG1: op("STARG1", 0), STARG2: op("STARG2", 0), STARG3: op("STARG3", 0),
	STARG4: op("STARG4", 0), STARG5: op("STARG5", 0), STARG6: op("STARG6", 0), STARG: op("STARG", 1),

	NEWBUFFER: op("NEWBUFFER", 0), MEMCPY: op("MEMCPY", 0), CAT: op("CAT", 0), SUBSTR: op("SUBSTR", 0),
	LEFT: op("LEFT", 0), RIGHT: op("RIGHT", 0), INVERT: op("INVERT", 0), AND: op("AND", 0),
	OR: op("OR", 0), XOR: op("XOR", 0), EQUAL: op("EQUAL", 0), NOTEQUAL: op("NOTEQUAL", 0),
	SIGN: op("SIGN", 0), ABS: op("ABS", 0), NEGATE: op("NEGATE", 0), INC: op("INC", 0),
	DEC: op("DEC", 0), ADD: op("ADD", 0), SUB: op("SUB", 0), MUL: op("MUL", 0),
	DIV: op("DIV", 0), MOD: op("MOD", 0), POW: op("POW", 0), SQRT: op("SQRT", 0),
	MODMUL: op("MODMUL", 0), MODPOW: op("MODPOW", 0), SHL: op("SHL", 0), SHR: op("SHR", 0),
	NOT: op("NOT", 0), BOOLAND: op("BOOLAND", 0), BOOLOR: op("BOOLOR", 0), NZ: op("NZ", 0),
	NUMEQUAL: op("NUMEQUAL", 0), NUMNOTEQUAL: op("NUMNOTEQUAL", 0), LT: op("LT", 0), LE: op("LE", 0),
	GT: op("GT", 0), GE: op("GE", 0), MIN: op("MIN", 0), MAX: op("MAX", 0), WITHIN: op("WITHIN", 0),

	PACKMAP: op("PACKMAP", 0), PACKSTRUCT: op("PACKSTRUCT", 0), PACK: op("PACK", 0), UNPACK: op("UNPACK", 0),
	NEWARRAY0: op("NEWARRAY0", 0), NEWARRAY: op("NEWARRAY", 0), NEWARRAY_T: op("NEWARRAY_T", 1),
	NEWSTRUCT0: op("NEWSTRUCT0", 0), NEWSTRUCT: op("NEWSTRUCT", 0), NEWMAP: op("NEWMAP", 0),
	SIZE: op("SIZE", 0), HASKEY: op("HASKEY", 0), KEYS: op("KEYS", 0), VALUES: op("VALUES", 0),
	PICKITEM: op("PICKITEM", 0), APPEND: op("APPEND", 0), SETITEM: op("SETITEM", 0),
	REVERSEITEMS: op("REVERSEITEMS", 0), REMOVE: op("REMOVE", 0), CLEARITEMS: op("CLEARITEMS", 0),
	POPITEM: op("POPITEM", 0), ISNULL: op("ISNULL", 0), ISTYPE: op("ISTYPE", 1), CONVERT: op("CONVERT", 1),
	ABORTMSG: op("ABORTMSG", 0), ASSERTMSG: op("ASSERTMSG", 0),
}

var byName = func() map[string]OpCode {
	m := make(map[string]OpCode, 256)
	for i, in := range table {
		if in.valid {
			m[in.name] = OpCode(i)
		}
	}
	return m
}()

// Valid reports whether op is a defined instruction.
func (op OpCode) Valid() bool {
	return table[op].valid
}

func (op OpCode) String() string {
	if in := table[op]; in.valid {
		return in.name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", byte(op))
}

// OperandSize returns the fixed operand width. For PUSHDATA opcodes it is
// zero; see PrefixSize.
func (op OpCode) OperandSize() int {
	return table[op].size
}

// PrefixSize returns the width of the length prefix of a variable-length
// operand, or zero for fixed-width opcodes.
func (op OpCode) PrefixSize() int {
	return table[op].prefix
}

// Parse looks up an opcode by mnemonic.
func Parse(name string) (OpCode, bool) {
	op, ok := byName[name]
	return op, ok
}
