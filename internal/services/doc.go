// Package services holds the error taxonomy and context annotations shared by
// the rendering pipeline components.
package services
