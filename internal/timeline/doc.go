// Package timeline converts declarative edit requests into validated,
// deterministically ordered composition plans.
package timeline
