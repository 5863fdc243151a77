// Package compose merges the fragments and the library list into one executable document.
//
// Two flavors are produced:
//   - Preview: written into the sandbox. The script is tagged for the in-page
//     transpiler and the head links the isolation stylesheet and relay shim.
//   - Standalone: the downloadable file. Plain script, no relay wiring.
//
// Composition is pure string assembly. The same inputs always produce
// byte-identical output, and it cannot fail.
//
// Document layout:
//
//	<head>  reset block + style fragment (one style element)
//	<body>  markup, one <script src> per library in order, user script
package compose
