package diag

// Code classifies a diagnostic.
type Code string

const (
	// Syntax errors, produced by grammar collaborators.
	CodeSyntax          Code = "SYNTAX"
	CodeHighlyErroneous Code = "HIGHLYERRONEOUS"

	// Registry errors.
	CodeDuplicateModule Code = "DUPLICATEMODULE"

	// Import-graph errors.
	CodeMissingModule     Code = "MISSINGMODULE"
	CodeNotASN1Module     Code = "NOTASN1MODULE"
	CodeSelfImport        Code = "SELFIMPORT"
	CodeSymbolNotExported Code = "SYMBOLNOTEXPORTED"
	CodeAmbiguousSymbol   Code = "AMBIGUOUSSYMBOL"
	CodeNoSuchAssignment  Code = "NOSUCHASSIGNMENT"
	CodeDuplicateImport   Code = "DUPLICATEIMPORT"
	CodeDuplicateSymbol   Code = "DUPLICATESYMBOL"
	CodeCircularImport    Code = "CIRCULARIMPORT"
	CodeUnusedImport      Code = "UNUSEDIMPORT"

	// Semantic errors raised by the reference body checker.
	CodeDuplicateAssignment Code = "DUPLICATEASSIGNMENT"

	// Internal failures caught at the driver boundary.
	CodeInternal Code = "INTERNAL"
)
