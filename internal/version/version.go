package version

// Version is set at build time:
//
//	-ldflags "-X github.com/arencloud/s3audit/internal/version.Version=vX.Y.Z"
var Version = "dev"
