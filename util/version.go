package util

// Version is stamped at build time with -ldflags "-X ...util.Version=v1.2.3".
var Version = "dev"
