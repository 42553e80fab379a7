package version

// Version is the shelvr release, stamped at build time:
// go build -ldflags "-X github.com/shelvr/shelvr/pkg/version.Version=1.0.0".
var Version = "dev"
