package patch

import "fmt"

// Registration text emission. Each native module the manifest names needs
// three pieces of C text spliced into the vendor sources: a forward
// declaration of its init entry point, a call registering the module with a
// fresh context, and a namelist line telling the pre-compiler to embed the
// module in compiled output.

// DeclarationFor returns the forward declaration of a module's init entry
// point. The declaration text doubles as the idempotency marker: a file
// already containing it is already patched.
func DeclarationFor(name string) string {
	return fmt.Sprintf("JSModuleDef *js_init_module_%s(JSContext *ctx, const char *module_name);", name)
}

// InitCallFor returns the call-site line registering the module alongside
// the standard library modules.
func InitCallFor(name string) string {
	return fmt.Sprintf("js_init_module_%s(ctx, \"%s\");", name, name)
}

// EmbedLineFor returns the pre-compiler namelist line that requests the
// module be embedded in compiled output.
func EmbedLineFor(name string) string {
	return fmt.Sprintf("namelist_add(&cmodule_list, \"%s\", \"%s\", 0);", name, name)
}
