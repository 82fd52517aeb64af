//go:build tools

package mobile

// gobind needs golang.org/x/mobile/bind when generating the Kotlin and
// Swift bindings, but no source in this module imports it directly.
import _ "golang.org/x/mobile/bind"
