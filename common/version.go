package common

const PackageName = "form-intake-backend"

// Version is set at build time with -ldflags "-X github.com/ruteri/form-intake-backend/common.Version=..."
var Version = "dev"
