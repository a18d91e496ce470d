// Package assets resolves references to uploaded media and shared resources
// (fonts, music) against configured read-only roots, rejecting locators that
// escape them.
package assets
