/*
Package asm lowers nested operation trees into EVM bytecode and back.

The pipeline is Compile (tree -> tokens), Resolve (labels -> fixed-width
address pushes) and Assemble (tokens -> bytes); Disassemble is the inverse
entry point. Build runs the whole pipeline in one call. The package is pure
data transformation: no I/O, no global mutable state beyond the read-only
opcode table.
*/
package asm
