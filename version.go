package espalier

// Version is the library version. Release builds override it via
// -ldflags "-X github.com/aretw0/espalier.Version=vX.Y.Z".
var Version = "0.1.0-dev"
