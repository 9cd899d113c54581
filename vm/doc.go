// Package vm implements a Z-machine: it loads a story file of any version
// from 1 to 8 and executes it one instruction at a time.
//
// This package contains:
//   - Version profiles and packed-address arithmetic
//   - The memory image with dynamic/static/high regions and the header
//   - The Z-character text codec, ZSCII tables and the dictionary
//   - The object tree with attributes and properties
//   - The call stack and the instruction decoder and engine
//   - Output streams, input, save/restore and undo snapshots
//   - A disassembler and a story builder used to assemble test stories
//
// Every instruction runs against a journal. An instruction that fails is
// rolled back so the machine is left as it was before the instruction.
// Errors are reported as *Error values carrying a kind and a severity;
// fatal errors halt the machine.
package vm
