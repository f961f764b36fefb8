/*
Copyright © 2026 the HemoLB authors.
This file is part of HemoLB.

HemoLB is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

HemoLB is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with HemoLB.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command hemolb is a command-line interface for the HemoLB blood flow
// solver.
package main

import (
	"fmt"
	"os"

	"github.com/vascularmodel/hemolb/hemolbutil"
)

func main() {
	cfg := hemolbutil.InitializeConfig()
	if err := cfg.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
