package rpmmd

import (
	"context"
	"io"
)

// Repository is a fully materialized repository: the decoded repomd index
// plus every package and advisory. It trades the memory of the whole set for
// random access; large repositories should use RepositoryReader and the
// streaming iterators instead.
type Repository struct {
	Repomd     Repomd
	Packages   []*Package
	Advisories []*UpdateRecord
}

// LoadRepository reads an entire repository from a local root directory.
func LoadRepository(root string) (*Repository, error) {
	reader, err := OpenRepository(root)
	if err != nil {
		return nil, err
	}
	return loadRepository(context.Background(), reader)
}

func loadRepository(ctx context.Context, reader *RepositoryReader) (*Repository, error) {
	repo := &Repository{Repomd: *reader.Repomd()}

	it, err := reader.IterPackages(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for {
		pkg, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		repo.Packages = append(repo.Packages, pkg)
	}

	if reader.Repomd().Record(MetadataUpdateinfo) != nil {
		ur, err := reader.IterAdvisories(ctx)
		if err != nil {
			return nil, err
		}
		defer ur.Close()
		for {
			rec, err := ur.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			repo.Advisories = append(repo.Advisories, rec)
		}
	}
	return repo, nil
}

// WriteTo writes the repository under root with the given options,
// preserving package order.
func (r *Repository) WriteTo(root string, opts RepositoryOptions) error {
	w, err := NewRepositoryWriterOptions(root, len(r.Packages), opts)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, pkg := range r.Packages {
		if err := w.AddPackage(pkg); err != nil {
			return err
		}
	}
	for _, rec := range r.Advisories {
		if err := w.AddAdvisory(rec); err != nil {
			return err
		}
	}
	return w.Finish()
}
