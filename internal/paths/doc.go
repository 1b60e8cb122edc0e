// Provides platform-appropriate paths for cruxrun.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS. The name "cruxrun" is used as the subdirectory under each base
// path. Session control sockets live in the runtime directory, sandboxes and
// image graph directories under the state directory.
package paths
