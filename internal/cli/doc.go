// Parses flags, configures logging and runs cruxrun commands.
//
// The root command accepts the following flags:
//
//	-q, --quiet        Suppress informational output.
//	-v, --verbose      Enable verbose output.
//	-d, --debug        Enable debug output.
//	    --config       JSON configuration file.
//	    --address      Containerd socket address.
//	    --namespace    Containerd namespace.
//	    --snapshotter  Snapshotter for image layers and sandboxes.
//
// and the commands run, status, stop and version. Flags override build-time
// defaults set via linker flags, CRUXRUN_* environment variables and the
// configuration file at the XDG config path. After parsing, the global logger
// is reconfigured to reflect the final level and verbosity.
package cli
