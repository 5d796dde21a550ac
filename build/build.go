package main

import (
	"bytes"
	"embed"
	"log"
	"os"
	"path/filepath"
	"text/template"

	"ekv"
	"ekv/config"
)

//go:embed docker-compose.yml.tmpl run.sh.tmpl
var templates embed.FS

type deployment struct {
	*config.Configuration
	UuidEnv string
}

func render(name string, cc *config.Configuration) ([]byte, error) {
	tmpl, err := template.ParseFS(templates, name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, deployment{Configuration: cc, UuidEnv: ekv.UuidEnv}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func generate(tmpl, target string, cc *config.Configuration, mode os.FileMode) {
	data, err := render(tmpl, cc)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(target, data, mode); err != nil {
		log.Fatal(err)
	}
	log.Println("generated", target)
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("please add arg [compose,script] [config]")
	}
	cc := config.Default()
	if len(os.Args) > 2 {
		var err error
		if cc, err = config.Load(os.Args[2]); err != nil {
			log.Fatal(err)
		}
	}
	out := ".."
	switch os.Args[1] {
	case "compose":
		generate("docker-compose.yml.tmpl", filepath.Join(out, "docker-compose.yml"), cc, 0644)
	case "script":
		generate("run.sh.tmpl", filepath.Join(out, "run.sh"), cc, 0755)
	default:
		log.Println("only support arg [compose,script]")
	}
}
