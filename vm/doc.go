/*
Package vm executes the pure, context-free fragment of the EVM instruction
set: exact 256-bit modular arithmetic, a bounded word stack, zero-extended
byte memory, transient storage and structured control flow. Opcodes that
need account state, chain context or gas accounting are rejected with a
typed Impure error rather than simulated.
*/
package vm
