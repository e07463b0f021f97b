package exc

const (
	CodeUnknownFatal                  = "H0000"
	CodeFileNotFound                  = "H0001"
	CodeUnsuportedFileSystemOperation = "H0002"
	CodePermissionDenied              = "H0003"
	CodeUnsupportedFileFormat         = "H0004"
	CodeUnexpectedEOF                 = "H0005"
	CodeParseError                    = "H0006"
	CodeInvalidNode                   = "H0007"
	CodeUnknownNodeKind               = "H0008"
)

const (
	CodeEOF = "_EOF_"
)

var (
	defaultNonFatal = map[string]bool{}
)
