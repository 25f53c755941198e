package lockfile

import "path/filepath"

// DetectImporter picks the importer for a lockfile based on its
// filename and, for yarn.lock, its content (classic vs berry).
func DetectImporter(filename string, content []byte) (Importer, error) {
	switch filepath.Base(filename) {
	case "package-lock.json", "npm-shrinkwrap.json":
		return NpmImporter{}, nil
	case "yarn.lock":
		if IsYarnBerry(content) {
			return YarnBerryImporter{}, nil
		}
		return YarnClassicImporter{}, nil
	case "pnpm-lock.yaml":
		return PnpmImporter{}, nil
	default:
		return nil, &ImportError{"unknown", "unrecognised lockfile filename: " + filename}
	}
}
